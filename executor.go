// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Response is the raw outcome of one dispatched request, before any
// format-specific interpretation.
type Response struct {
	StatusCode int
	StatusText string
	Headers    http.Header
	Body       []byte
	FinalURL   string
}

// RequestExecutor dispatches built requests through pooled agents. It
// enforces a hard timeout independent of the transport's own timeouts and
// rewrites low-level transport failures into actionable errors.
type RequestExecutor struct {
	pool      *AgentPool
	transport http.RoundTripper
	logger    Logger
}

func NewRequestExecutor(pool *AgentPool, logger Logger) *RequestExecutor {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	return &RequestExecutor{pool: pool, logger: logger}
}

// SetTransport overrides the pooled transport for every request. Meant for
// tests that stub the network with a fake round tripper.
func (e *RequestExecutor) SetTransport(rt http.RoundTripper) {
	e.transport = rt
}

// Do performs the request. The hard timeout is armed at send time; if it
// fires first, the in-flight transport call is cancelled (the socket is torn
// down, not abandoned) and the error names the configured timeout rather
// than a generic cancellation.
func (e *RequestExecutor) Do(ctx context.Context, built *builtRequest) (*Response, error) {
	spec := built.spec
	timeout := time.Duration(spec.TimeoutMs) * time.Millisecond

	timeoutErr := newError(CodeTimedOut,
		"request canceled due to timeout (%dms); this was triggered by the configured timeout setting, increase the timeout value if the request needs more time", spec.TimeoutMs)
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, timeoutErr)
	defer cancel()

	transport := e.transport
	if transport == nil {
		transport = e.pool.Agent(built.agentCfg)
	}
	client := &http.Client{
		Transport:     transport,
		CheckRedirect: redirectPolicy(spec.Redirect),
	}

	requestID := uuid.NewString()
	e.logger.Debug("[Request %s] %s %s", requestID, built.req.Method, built.req.URL.Redacted())

	resp, err := client.Do(built.req.WithContext(ctx))
	if err != nil {
		classified := e.classify(ctx, err, spec)
		e.logger.Warning("[Request %s] failed: %s", requestID, classified.Error())
		return nil, classified
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		classified := e.classify(ctx, err, spec)
		e.logger.Warning("[Request %s] body read failed: %s", requestID, classified.Error())
		return nil, classified
	}

	e.logger.Debug("[Request %s] %d %s (%d bytes)", requestID, resp.StatusCode, resp.Status, len(body))

	result := &Response{
		StatusCode: resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}

	// Non-2xx/3xx statuses are failures unless the caller opted out of
	// status-based error semantics entirely.
	if !spec.NeverError && resp.StatusCode >= 400 {
		err := newError(CodeHTTPStatus, "request failed with status %d %s", resp.StatusCode, result.StatusText)
		return result, err
	}
	return result, nil
}

func redirectPolicy(spec RedirectSpec) func(req *http.Request, via []*http.Request) error {
	if spec.Follow != nil && !*spec.Follow {
		// Zero redirects permitted: the first 3xx is returned as-is.
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	maxRedirects := spec.MaxRedirects
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return newError(CodeTooManyRedirects, "stopped after %d redirects", maxRedirects)
		}
		return nil
	}
}

// classify rewrites raw transport failures into the package taxonomy with
// actionable messages; raw socket error strings never reach the caller
// directly.
func (e *RequestExecutor) classify(ctx context.Context, err error, spec RequestSpec) error {
	var pkgErr *Error
	if errors.As(err, &pkgErr) {
		return pkgErr
	}

	// The hard timeout cancels the context with the TimedOut error as cause.
	if errors.Is(err, context.DeadlineExceeded) {
		if cause := context.Cause(ctx); cause != nil {
			var timedOut *Error
			if errors.As(cause, &timedOut) {
				return timedOut
			}
		}
		return wrapError(CodeTimedOut, err,
			"request timeout: no response received within %d milliseconds; check the network, the proxy server and the target, or increase the timeout value", spec.TimeoutMs)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := err.Error()
	proxyFailure := strings.Contains(msg, "proxyconnect")

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if proxyFailure {
			return wrapError(CodeProxyTunnelError, err,
				"unable to connect to proxy server: host %q not found; check the proxy address or try an IP address instead of a hostname", dnsErr.Name)
		}
		return wrapError(CodeProxyTunnelError, err, "host %q not found; check the target URL", dnsErr.Name)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		if proxyFailure {
			return wrapError(CodeProxyTunnelError, err,
				"proxy server connection refused (%s); verify the proxy server is running and the port number is correct", proxyAddr(spec))
		}
		return wrapError(CodeProxyTunnelError, err, "connection refused by the target server")
	}

	if errors.Is(err, syscall.ECONNRESET) {
		return wrapError(CodeConnectionReset, err,
			"connection reset: the server may have closed the connection unexpectedly; check that the target server is running properly")
	}

	if isTLSVerificationError(err) {
		return wrapError(CodeTLSVerificationError, err,
			"TLS certificate verification failed: %v; enable allowUnauthorizedCerts to skip verification (insecure, trusted environments only)", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if proxyFailure {
			return wrapError(CodeProxyTunnelError, err,
				"proxy server connection timeout (%s); check the network connection or whether the proxy server is available", proxyAddr(spec))
		}
		return wrapError(CodeTimedOut, err,
			"request timeout: no response received within %d milliseconds; check the network, the proxy server and the target, or increase the timeout value", spec.TimeoutMs)
	}

	if proxyFailure {
		return wrapError(CodeProxyTunnelError, err,
			"proxy tunnel could not be established (%s); the expected proxy format is http://myproxy:3128 or myproxy:3128", proxyAddr(spec))
	}

	return wrapError(CodeUnknown, err, "request failed: %v", err)
}

func isTLSVerificationError(err error) bool {
	var (
		certErr      *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidCert  x509.CertificateInvalidError
	)
	return errors.As(err, &certErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert)
}

func proxyAddr(spec RequestSpec) string {
	if spec.Proxy == nil {
		return ""
	}
	if ep, err := ResolveProxyURL(spec.Proxy.URL); err == nil {
		return net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	}
	return spec.Proxy.URL
}
