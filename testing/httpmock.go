// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy_testing

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockResponse is one canned response. Status defaults to 200 and the
// Content-Type header to application/json when unset.
type MockResponse struct {
	Status  int
	Headers map[string]string
	Body    string
}

// MockRoundTripper serves canned responses keyed by normalized URL. A key may
// map to a sequence; responses are consumed in order and the last one repeats,
// which is how pagination loops are driven in tests.
type MockRoundTripper struct {
	mu       sync.Mutex
	mockMap  map[string][]MockResponse
	served   map[string]int
	requests []*http.Request

	// Delay is slept before every response, for timeout tests.
	Delay time.Duration
}

func NewMockRoundTripper(config map[string][]MockResponse) *MockRoundTripper {
	normalized := make(map[string][]MockResponse, len(config))
	for raw, responses := range config {
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		normalized[normalizeURL(parsed)] = responses
	}
	return &MockRoundTripper{
		mockMap: normalized,
		served:  make(map[string]int),
	}
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if m.Delay > 0 {
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(m.Delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req.Clone(req.Context()))

	key := normalizeURL(req.URL)
	responses, ok := m.mockMap[key]
	if !ok || len(responses) == 0 {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Status:     "404 Not Found",
			Body:       io.NopCloser(bytes.NewBufferString(`{"error": "mock not found"}`)),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Request:    req,
		}, nil
	}

	idx := m.served[key]
	if idx >= len(responses) {
		idx = len(responses) - 1
	}
	m.served[key]++

	mock := responses[idx]
	status := mock.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	for name, value := range mock.Headers {
		header.Set(name, value)
	}

	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewBufferString(mock.Body)),
		Header:     header,
		Request:    req,
	}, nil
}

// Requests returns the captured requests in arrival order.
func (m *MockRoundTripper) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Normalize URL by sorting query params and stripping trailing slash
func normalizeURL(u *url.URL) string {
	base := u.Scheme + "://" + u.Host + strings.TrimRight(u.Path, "/")
	params := u.Query()

	var sorted []string
	for k, vs := range params {
		for _, v := range vs {
			sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	sort.Strings(sorted)

	if len(sorted) > 0 {
		return base + "?" + strings.Join(sorted, "&")
	}
	return base
}
