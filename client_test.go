// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hoptesting "github.com/FunTW/go-httpsoverproxy/testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewClientFromConfig(t *testing.T) {
	path := writeConfig(t, `
requests:
  - method: GET
    url: https://api.example.com/items
    query:
      limit: "10"
    pagination:
      mode: responseContainsNextURL
      nextUrl: .body.next
batch:
  size: 2
  intervalMs: 100
`)
	client, cfg, errs, err := NewClientFromConfig(path)
	require.NoError(t, err)
	require.Empty(t, errs)
	defer client.Close()

	require.Len(t, cfg.Requests, 1)
	assert.Equal(t, "https://api.example.com/items", cfg.Requests[0].URL)
	assert.Equal(t, PaginationNextURL, cfg.Requests[0].Pagination.Mode)
	assert.Equal(t, 2, cfg.Batch.Size)
}

func TestNewClientFromConfigValidation(t *testing.T) {
	path := writeConfig(t, `
requests:
  - method: GET
  - method: FETCH
    url: https://api.example.com/items
`)
	_, _, errs, err := NewClientFromConfig(path)
	require.Error(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "requests[0].url", errs[0].Location)
	assert.Equal(t, "requests[1].method", errs[1].Location)
}

func TestNewClientFromConfigMissingFile(t *testing.T) {
	_, _, _, err := NewClientFromConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestClientDoRejectsInvalidSpec(t *testing.T) {
	client := NewClient()
	defer client.Close()
	client.SetLogger(NoopLogger{})

	_, err := client.Do(context.Background(), RequestSpec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url is required")
}

func TestClientDoAllRejectsInvalidSpec(t *testing.T) {
	client := NewClient()
	defer client.Close()
	client.SetLogger(NoopLogger{})

	specs := []RequestSpec{{URL: "https://ok.example.com"}, {}}
	_, err := client.DoAll(context.Background(), specs, BatchSpec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 1")
}

type constantEvaluator struct{}

func (constantEvaluator) Bool(string, PageEnv) (bool, error) { return true, nil }
func (constantEvaluator) Value(string, PageEnv) (any, error) { return "const", nil }

func TestClientCustomEvaluator(t *testing.T) {
	mock := hoptesting.NewMockRoundTripper(map[string][]hoptesting.MockResponse{
		"https://api.example.com/scan": {{Body: `{"done": false}`}},
	})
	client := newMockedClient(t, mock)
	client.SetEvaluator(constantEvaluator{})

	spec := RequestSpec{
		URL: "https://api.example.com/scan",
		Pagination: &PaginationSpec{
			Mode: PaginationUpdateParameter,
			Parameters: []PaginationParam{
				{Slot: SlotQuery, Name: "page", Value: "{{ anything }}"},
			},
			CompleteWhen:       CompleteOnPredicate,
			CompleteExpression: "ignored",
		},
	}
	pages, err := client.Do(context.Background(), spec)
	require.NoError(t, err)
	// The injected evaluator reports completion on the first page.
	assert.Len(t, pages, 1)
}
