// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardTargetBlocksInternalHosts(t *testing.T) {
	blocked := []string{
		"http://localhost/admin",
		"https://127.0.0.1:8443/",
		"http://[::1]:3000/metrics",
		"http://192.168.1.20/api",
		"http://10.0.0.5/",
		"http://172.16.0.1/",
		"http://172.31.255.254/",
	}
	for _, target := range blocked {
		err := GuardTarget(target, false)
		require.Error(t, err, "target %s", target)
		assert.Equal(t, CodeInternalNetworkBlocked, CodeOf(err))
		assert.Contains(t, err.Error(), "allowInternalNetworkAccess")
	}
}

func TestGuardTargetAllowsPublicHosts(t *testing.T) {
	allowed := []string{
		"https://api.example.com/v1/users",
		"http://172.15.0.1/",  // below the private range
		"http://172.32.0.1/",  // above the private range
		"http://192.169.1.1/", // not 192.168
	}
	for _, target := range allowed {
		assert.NoError(t, GuardTarget(target, false), "target %s", target)
	}
}

func TestGuardTargetOptIn(t *testing.T) {
	assert.NoError(t, GuardTarget("http://localhost:8080/internal", true))
	assert.NoError(t, GuardTarget("http://10.1.2.3/", true))
}

func TestGuardTargetInvalidURL(t *testing.T) {
	for _, target := range []string{"", "not a url", "example.com/no-scheme", "http://"} {
		err := GuardTarget(target, false)
		require.Error(t, err, "target %q", target)
		assert.Equal(t, CodeInvalidURL, CodeOf(err))
	}
}
