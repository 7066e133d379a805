// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"net/url"
	"strconv"
	"strings"
)

// GuardTarget rejects target URLs that point into private or loopback
// address space unless allowInternal is set. Default-deny keeps the engine
// from being used as an SSRF pivot when fed untrusted input.
func GuardTarget(rawURL string, allowInternal bool) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return newError(CodeInvalidURL, "invalid URL: %s", rawURL)
	}

	hostname := strings.ToLower(u.Hostname())
	if !isInternalHost(hostname) {
		return nil
	}
	if allowInternal {
		return nil
	}
	return newError(CodeInternalNetworkBlocked,
		"security restriction: access to internal network address %q is not allowed; enable allowInternalNetworkAccess to permit it", hostname)
}

func isInternalHost(hostname string) bool {
	switch hostname {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	if strings.HasPrefix(hostname, "192.168.") || strings.HasPrefix(hostname, "10.") {
		return true
	}
	// 172.16.0.0 - 172.31.255.255
	if strings.HasPrefix(hostname, "172.") {
		parts := strings.SplitN(hostname, ".", 3)
		if len(parts) >= 2 {
			second, err := strconv.Atoi(parts[1])
			if err == nil && second >= 16 && second <= 31 {
				return true
			}
		}
	}
	return false
}
