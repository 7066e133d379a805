// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"crypto/tls"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// AgentKind classifies a pooled transport.
type AgentKind string

const (
	AgentHTTP  AgentKind = "http"
	AgentHTTPS AgentKind = "https"
	AgentProxy AgentKind = "proxy"
)

// AgentConfig is the canonical pooling key. Two requests with equal configs
// share one transport; any differing field yields a distinct one.
type AgentConfig struct {
	Kind               AgentKind
	TimeoutMs          int
	KeepAlive          bool
	MaxSockets         int
	MaxFreeSockets     int
	RejectUnauthorized bool
	ProxyURL           string // canonical proxy URL, empty unless Kind == AgentProxy
}

// AgentPool caches transports by their configuration so sockets are reused
// across requests instead of recreated per call. The pool is the sole owner
// of its transports; requests only borrow them. Construct one per process
// root and pass it by reference.
type AgentPool struct {
	mu     sync.Mutex
	agents map[AgentConfig]*http.Transport
}

func NewAgentPool() *AgentPool {
	return &AgentPool{agents: make(map[AgentConfig]*http.Transport)}
}

// Agent returns the pooled transport for cfg, creating it on first use.
// Safe for concurrent callers; creation for the same key happens once.
func (p *AgentPool) Agent(cfg AgentConfig) *http.Transport {
	p.mu.Lock()
	defer p.mu.Unlock()

	if agent, ok := p.agents[cfg]; ok {
		return agent
	}
	agent := newTransport(cfg)
	p.agents[cfg] = agent
	return agent
}

// Close drains idle connections on every cached transport and empties the
// cache. Meant for manager teardown, not per-request cleanup.
func (p *AgentPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, agent := range p.agents {
		agent.CloseIdleConnections()
	}
	p.agents = make(map[AgentConfig]*http.Transport)
}

// Len reports the number of distinct cached transports.
func (p *AgentPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.agents)
}

func newTransport(cfg AgentConfig) *http.Transport {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultTimeoutMs * time.Millisecond
	}

	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	t := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   timeout,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxConnsPerHost:       cfg.MaxSockets,
		MaxIdleConnsPerHost:   cfg.MaxFreeSockets,
		DisableKeepAlives:     !cfg.KeepAlive,
		ForceAttemptHTTP2:     true,
	}

	// Certificate verification is scoped to this transport only. Toggling
	// process-wide TLS state would leak into unrelated concurrent requests.
	if !cfg.RejectUnauthorized {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if cfg.Kind == AgentProxy && cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			t.Proxy = http.ProxyURL(proxyURL)
			// The CONNECT request needs its own Proxy-Authorization header;
			// the tunneled request's headers never reach the proxy.
			if proxyURL.User != nil {
				password, _ := proxyURL.User.Password()
				t.ProxyConnectHeader = http.Header{
					"Proxy-Authorization": []string{basicAuthHeader(proxyURL.User.Username(), password)},
				}
			}
		}
	}

	return t
}

func basicAuthHeader(username, password string) string {
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + token
}
