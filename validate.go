// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Message  string
	Location string // optional, e.g. "pagination.parameters[0].name"
}

func (e ValidationError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("%s: %s", e.Location, e.Message)
	}
	return e.Message
}

// ValidateSpec checks a request spec for structural problems before any
// network work happens. An empty result means the spec is runnable.
func ValidateSpec(spec RequestSpec) []ValidationError {
	var errs []ValidationError

	if spec.URL == "" {
		errs = append(errs, ValidationError{"url is required", "url"})
	}

	if spec.Method != "" {
		m := strings.ToUpper(spec.Method)
		switch m {
		case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS":
		default:
			errs = append(errs, ValidationError{fmt.Sprintf("unsupported method '%s'", spec.Method), "method"})
		}
	}

	if spec.TimeoutMs < 0 {
		errs = append(errs, ValidationError{"timeoutMs must not be negative", "timeoutMs"})
	}
	if spec.Redirect.MaxRedirects < 0 {
		errs = append(errs, ValidationError{"maxRedirects must not be negative", "redirect.maxRedirects"})
	}

	if spec.Body != nil {
		errs = append(errs, validateBody(*spec.Body, "body")...)
	}
	if spec.Auth != nil {
		errs = append(errs, validateAuth(*spec.Auth, "auth")...)
	}
	if spec.Proxy != nil {
		errs = append(errs, validateProxy(*spec.Proxy, "proxy")...)
	}
	if spec.Pagination != nil {
		errs = append(errs, validatePagination(*spec.Pagination, "pagination")...)
	}

	if spec.ResponseFormat != "" {
		switch spec.ResponseFormat {
		case FormatAutodetect, FormatJSON, FormatText, FormatFile:
		default:
			errs = append(errs, ValidationError{
				fmt.Sprintf("responseFormat must be one of [autodetect, json, text, file], got '%s'", spec.ResponseFormat),
				"responseFormat",
			})
		}
	}

	return errs
}

func validateBody(body BodySpec, location string) []ValidationError {
	var errs []ValidationError

	switch body.Kind {
	case BodyJSON:
		// JSON may come as an object or as raw text parsed later.
	case BodyForm:
	case BodyMultipart:
		if len(body.Parts) == 0 {
			errs = append(errs, ValidationError{"multipart body requires at least one part", location + ".parts"})
		}
		for i, part := range body.Parts {
			if part.Name == "" {
				errs = append(errs, ValidationError{"part name is required", fmt.Sprintf("%s.parts[%d].name", location, i)})
			}
			if part.Value != "" && part.BinaryField != "" {
				errs = append(errs, ValidationError{"part must set either value or binaryField, not both", fmt.Sprintf("%s.parts[%d]", location, i)})
			}
		}
	case BodyBinary:
		if body.BinaryField == "" {
			errs = append(errs, ValidationError{"binary body requires binaryField", location + ".binaryField"})
		}
	case BodyRaw:
	default:
		errs = append(errs, ValidationError{
			fmt.Sprintf("body.kind must be one of [json, form-urlencoded, multipart-form-data, binaryData, raw], got '%s'", body.Kind),
			location + ".kind",
		})
	}

	return errs
}

func validateAuth(auth AuthSpec, location string) []ValidationError {
	var errs []ValidationError

	switch auth.Kind {
	case AuthNone, "":
	case AuthBasic:
		if auth.Username == "" {
			errs = append(errs, ValidationError{"auth.username is required when kind is basic", location + ".username"})
		}
	case AuthBearer:
		if auth.Token == "" {
			errs = append(errs, ValidationError{"auth.token is required when kind is bearer", location + ".token"})
		}
	case AuthHeader:
		if auth.Name == "" {
			errs = append(errs, ValidationError{"auth.name is required when kind is header", location + ".name"})
		}
	case AuthQuery:
		if auth.Name == "" {
			errs = append(errs, ValidationError{"auth.name is required when kind is query", location + ".name"})
		}
	case AuthCustom:
		if len(auth.Headers) == 0 && len(auth.Query) == 0 && len(auth.Body) == 0 {
			errs = append(errs, ValidationError{"custom auth must set at least one of headers, query, body", location})
		}
	case AuthPredefined:
		if auth.CredentialType == "" {
			errs = append(errs, ValidationError{"auth.credentialType is required when kind is predefinedCredentialType", location + ".credentialType"})
		}
	default:
		errs = append(errs, ValidationError{
			fmt.Sprintf("auth.kind must be one of [none, basic, bearer, header, query, custom, predefinedCredentialType], got '%s'", auth.Kind),
			location + ".kind",
		})
	}

	return errs
}

func validateProxy(proxy ProxySpec, location string) []ValidationError {
	var errs []ValidationError

	if proxy.URL == "" {
		errs = append(errs, ValidationError{"proxy.url is required when a proxy is configured", location + ".url"})
	} else if _, err := ResolveProxyURL(proxy.URL); err != nil {
		errs = append(errs, ValidationError{err.Error(), location + ".url"})
	}
	if proxy.Auth != nil && proxy.Auth.Username == "" {
		errs = append(errs, ValidationError{"proxy.auth.username is required when proxy auth is set", location + ".auth.username"})
	}

	return errs
}

func validatePagination(pg PaginationSpec, location string) []ValidationError {
	var errs []ValidationError

	switch pg.Mode {
	case PaginationOff, "":
		return errs
	case PaginationNextURL:
		if pg.NextURL == "" {
			errs = append(errs, ValidationError{"pagination.nextUrl is required when mode is responseContainsNextURL", location + ".nextUrl"})
		}
	case PaginationUpdateParameter:
		if len(pg.Parameters) == 0 {
			errs = append(errs, ValidationError{"pagination.parameters must be non-empty when mode is updateParameterEachRequest", location + ".parameters"})
		}
		for i, param := range pg.Parameters {
			errs = append(errs, validatePaginationParam(param, fmt.Sprintf("%s.parameters[%d]", location, i))...)
		}
		// Without a completion policy or a page limit the loop would never end.
		if pg.CompleteWhen == "" && pg.PageLimit <= 0 {
			errs = append(errs, ValidationError{"pagination requires completeWhen or pageLimit when mode is updateParameterEachRequest", location})
		}
	default:
		errs = append(errs, ValidationError{
			fmt.Sprintf("pagination.mode must be one of [off, updateParameterEachRequest, responseContainsNextURL], got '%s'", pg.Mode),
			location + ".mode",
		})
		return errs
	}

	switch pg.CompleteWhen {
	case "", CompleteOnEmptyResponse:
	case CompleteOnStatusCodes:
		if len(pg.StatusCodesComplete) == 0 {
			errs = append(errs, ValidationError{"pagination.statusCodesComplete must be non-empty when completeWhen is receiveSpecificStatusCodes", location + ".statusCodesComplete"})
		}
	case CompleteOnPredicate:
		if pg.CompleteExpression == "" {
			errs = append(errs, ValidationError{"pagination.completeExpression is required when completeWhen is customPredicate", location + ".completeExpression"})
		}
	default:
		errs = append(errs, ValidationError{
			fmt.Sprintf("pagination.completeWhen must be one of [responseIsEmpty, receiveSpecificStatusCodes, customPredicate], got '%s'", pg.CompleteWhen),
			location + ".completeWhen",
		})
	}

	if pg.PageLimit < 0 {
		errs = append(errs, ValidationError{"pagination.pageLimit must not be negative", location + ".pageLimit"})
	}
	if pg.IntervalMs < 0 {
		errs = append(errs, ValidationError{"pagination.intervalMs must not be negative", location + ".intervalMs"})
	}

	return errs
}

func validatePaginationParam(param PaginationParam, location string) []ValidationError {
	var errs []ValidationError

	if param.Name == "" {
		errs = append(errs, ValidationError{"pagination parameter name is required", location + ".name"})
	}
	if param.Value == "" {
		errs = append(errs, ValidationError{"pagination parameter value is required", location + ".value"})
	}
	if param.Slot != SlotQuery && param.Slot != SlotBody && param.Slot != SlotHeader {
		errs = append(errs, ValidationError{"pagination parameter slot must be one of [query, body, header]", location + ".slot"})
	}

	return errs
}
