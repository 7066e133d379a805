// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hoptesting "github.com/FunTW/go-httpsoverproxy/testing"
)

func specFor(url string) RequestSpec {
	return RequestSpec{URL: url}
}

func TestBatchProcessesAllItems(t *testing.T) {
	mock := hoptesting.NewMockRoundTripper(map[string][]hoptesting.MockResponse{
		"https://api.example.com/a": {{Body: `{"item": "a"}`}},
		"https://api.example.com/b": {{Body: `{"item": "b"}`}},
		"https://api.example.com/c": {{Body: `{"item": "c"}`}},
	})
	client := newMockedClient(t, mock)

	specs := []RequestSpec{
		specFor("https://api.example.com/a"),
		specFor("https://api.example.com/b"),
		specFor("https://api.example.com/c"),
	}
	results, err := client.DoAll(context.Background(), specs, BatchSpec{Size: 2})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.NoError(t, r.Error)
		assert.Len(t, r.Pages, 1)
	}
}

func TestBatchIntervalBetweenBatches(t *testing.T) {
	mock := hoptesting.NewMockRoundTripper(map[string][]hoptesting.MockResponse{
		"https://api.example.com/a": {{Body: `{}`}},
		"https://api.example.com/b": {{Body: `{}`}},
	})
	client := newMockedClient(t, mock)

	specs := []RequestSpec{
		specFor("https://api.example.com/a"),
		specFor("https://api.example.com/b"),
	}

	started := time.Now()
	_, err := client.DoAll(context.Background(), specs, BatchSpec{Size: 1, IntervalMs: 50})
	require.NoError(t, err)
	// One interval between two single-item batches.
	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)
	assert.Less(t, time.Since(started), 110*time.Millisecond)
}

func TestBatchSizeZeroMeansOne(t *testing.T) {
	mock := hoptesting.NewMockRoundTripper(map[string][]hoptesting.MockResponse{
		"https://api.example.com/a": {{Body: `{}`}},
		"https://api.example.com/b": {{Body: `{}`}},
	})
	client := newMockedClient(t, mock)

	started := time.Now()
	_, err := client.DoAll(context.Background(), []RequestSpec{
		specFor("https://api.example.com/a"),
		specFor("https://api.example.com/b"),
	}, BatchSpec{Size: 0, IntervalMs: 40})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 40*time.Millisecond)
}

func TestBatchSizeAllSkipsIntervals(t *testing.T) {
	mock := hoptesting.NewMockRoundTripper(map[string][]hoptesting.MockResponse{
		"https://api.example.com/a": {{Body: `{}`}},
		"https://api.example.com/b": {{Body: `{}`}},
	})
	client := newMockedClient(t, mock)

	started := time.Now()
	_, err := client.DoAll(context.Background(), []RequestSpec{
		specFor("https://api.example.com/a"),
		specFor("https://api.example.com/b"),
	}, BatchSpec{Size: -1, IntervalMs: 500})
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 200*time.Millisecond)
}

func TestBatchStopsOnFirstFailure(t *testing.T) {
	mock := hoptesting.NewMockRoundTripper(map[string][]hoptesting.MockResponse{
		"https://api.example.com/ok":   {{Body: `{}`}},
		"https://api.example.com/bad":  {{Status: 500, Body: `{}`}},
		"https://api.example.com/next": {{Body: `{}`}},
	})
	client := newMockedClient(t, mock)

	specs := []RequestSpec{
		specFor("https://api.example.com/ok"),
		specFor("https://api.example.com/bad"),
		specFor("https://api.example.com/next"),
	}
	results, err := client.DoAll(context.Background(), specs, BatchSpec{Size: 1})
	require.Error(t, err)
	assert.Equal(t, CodeHTTPStatus, CodeOf(err))
	assert.Len(t, results, 2, "processing stops at the failed item")
}

func TestBatchContinueOnFailEmitsErrorRecord(t *testing.T) {
	mock := hoptesting.NewMockRoundTripper(map[string][]hoptesting.MockResponse{
		"https://api.example.com/ok":               {{Body: `{"fine": true}`}},
		"https://api.example.com/bad?token=secret": {{Status: 500, Body: `{}`}},
	})
	client := newMockedClient(t, mock)

	specs := []RequestSpec{
		{URL: "https://user:pw@api.example.com/bad?token=secret"},
		specFor("https://api.example.com/ok"),
	}
	results, err := client.DoAll(context.Background(), specs, BatchSpec{Size: 1, ContinueOnFail: true})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Error(t, results[0].Error)
	record, ok := results[0].Pages[len(results[0].Pages)-1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(CodeHTTPStatus), record["code"])

	request, ok := record["request"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://api.example.com/bad", request["url"], "userinfo and query are stripped")
	assert.Equal(t, "GET", request["method"])
	assert.Equal(t, DefaultTimeoutMs, request["timeoutMs"])

	assert.NoError(t, results[1].Error)
}

func TestAggregateArray(t *testing.T) {
	results := []ItemResult{
		{Index: 0, Pages: []any{map[string]any{"a": 1}}},
		{Index: 1, Pages: []any{map[string]any{"b": 2}, map[string]any{"c": 3}}},
	}
	out := Aggregate(results, &AggregationSpec{Type: AggregateArray})
	assert.Equal(t, []any{
		map[string]any{"a": 1},
		map[string]any{"b": 2},
		map[string]any{"c": 3},
	}, out)
}

func TestAggregateMergeShallow(t *testing.T) {
	results := []ItemResult{
		{Pages: []any{map[string]any{"a": 1, "shared": map[string]any{"x": 1}}}},
		{Pages: []any{map[string]any{"b": 2, "shared": map[string]any{"y": 2}}}},
	}
	out := Aggregate(results, &AggregationSpec{Type: AggregateMerge})
	merged, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, merged["a"])
	assert.Equal(t, 2, merged["b"])
	assert.Equal(t, map[string]any{"y": 2}, merged["shared"], "shallow merge: later object replaces")
}

func TestAggregateMergeDeep(t *testing.T) {
	results := []ItemResult{
		{Pages: []any{map[string]any{"shared": map[string]any{"x": 1}}}},
		{Pages: []any{map[string]any{"shared": map[string]any{"y": 2}}}},
	}
	out := Aggregate(results, &AggregationSpec{Type: AggregateMerge, DeepMerge: true})
	merged := out.(map[string]any)
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, merged["shared"])
}

func TestAggregateSummary(t *testing.T) {
	results := []ItemResult{
		{Pages: []any{map[string]any{}}},
		{Pages: []any{map[string]any{}, map[string]any{}}},
		{Error: errors.New("boom")},
	}
	out := Aggregate(results, &AggregationSpec{Type: AggregateSummary, IncludeMetadata: true})
	summary, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, summary["total"])
	assert.Equal(t, 2, summary["succeeded"])
	assert.Equal(t, 1, summary["failed"])
	assert.Equal(t, 3, summary["pages"])
	assert.Equal(t, []any{"boom"}, summary["errors"])
}

func TestAggregateNilSpecPassthrough(t *testing.T) {
	results := []ItemResult{{Index: 0}}
	out := Aggregate(results, nil)
	assert.Equal(t, results, out)
}
