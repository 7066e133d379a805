// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ProxyEndpoint is a normalized proxy address. Host carries no scheme.
type ProxyEndpoint struct {
	Host     string
	Port     int
	Username string
	Password string
}

// URL renders the endpoint as the http:// proxy URL used for CONNECT
// tunneling, embedding credentials when present.
func (p ProxyEndpoint) URL() *url.URL {
	u := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

func (p ProxyEndpoint) hasAuth() bool {
	return p.Username != ""
}

// ResolveProxyURL normalizes a proxy address that may omit the scheme
// ("myproxy:3128") or include it ("http://myproxy:3128", optionally with
// embedded credentials). The port defaults to 8080 when unspecified.
func ResolveProxyURL(raw string) (ProxyEndpoint, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ProxyEndpoint{}, invalidProxyURL(raw)
	}

	// Strict parse first. url.Parse accepts scheme-less strings but leaves
	// Host empty, so require a scheme for this path.
	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err == nil && u.Hostname() != "" {
			ep := ProxyEndpoint{Host: u.Hostname(), Port: DefaultProxyPort}
			if portStr := u.Port(); portStr != "" {
				port, err := strconv.Atoi(portStr)
				if err != nil {
					return ProxyEndpoint{}, invalidProxyURL(raw)
				}
				ep.Port = port
			}
			if u.User != nil {
				ep.Username = u.User.Username()
				ep.Password, _ = u.User.Password()
			}
			return ep, nil
		}
		return ProxyEndpoint{}, invalidProxyURL(raw)
	}

	// Fallback: split host:port on the last colon. A bare hostname with
	// neither scheme nor port is rejected.
	i := strings.LastIndex(trimmed, ":")
	if i <= 0 {
		return ProxyEndpoint{}, invalidProxyURL(raw)
	}
	host, portStr := trimmed[:i], trimmed[i+1:]
	ep := ProxyEndpoint{Host: host, Port: DefaultProxyPort}
	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 {
			return ProxyEndpoint{}, invalidProxyURL(raw)
		}
		ep.Port = port
	}
	return ep, nil
}

func invalidProxyURL(raw string) *Error {
	return newError(CodeInvalidProxyURL,
		"invalid proxy URL %q: the expected format is http://myproxy:3128 or myproxy:3128", raw)
}
