// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure class that callers can branch on. Every
// error produced by this package carries exactly one code.
type ErrorCode string

const (
	CodeInvalidProxyURL        ErrorCode = "INVALID_PROXY_URL"
	CodeInternalNetworkBlocked ErrorCode = "INTERNAL_NETWORK_BLOCKED"
	CodeInvalidURL             ErrorCode = "INVALID_URL"
	CodeInvalidJSON            ErrorCode = "INVALID_JSON"
	CodeInvalidJSONResponse    ErrorCode = "INVALID_JSON_RESPONSE"
	CodeTimedOut               ErrorCode = "TIMEOUT"
	CodeProxyTunnelError       ErrorCode = "PROXY_TUNNEL_ERROR"
	CodeTLSVerificationError   ErrorCode = "TLS_VERIFICATION_ERROR"
	CodeConnectionReset        ErrorCode = "CONNECTION_RESET"
	CodeTooManyRedirects       ErrorCode = "TOO_MANY_REDIRECTS"
	CodeMissingRequiredField   ErrorCode = "MISSING_REQUIRED_FIELD"
	CodeHTTPStatus             ErrorCode = "HTTP_STATUS_ERROR"
	CodeUnknown                ErrorCode = "UNKNOWN_ERROR"
)

// Error is the package-wide error type. The Message is rewritten into
// actionable text; the underlying transport error stays reachable via Unwrap.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches two package errors by code so callers can use
// errors.Is(err, &Error{Code: CodeTimedOut}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf extracts the error code, falling back to CodeUnknown for errors
// that did not originate in this package.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
