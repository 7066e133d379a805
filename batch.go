// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// ItemResult is the outcome of one input item: its fetched pages, plus the
// error when the item failed. Pages may be non-empty even with an error set
// when pagination failed partway through.
type ItemResult struct {
	Index int
	Pages []any
	Error error
}

// MarshalJSON flattens the error into a string so results serialize cleanly.
func (r ItemResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Index int    `json:"index"`
		Pages []any  `json:"pages"`
		Error string `json:"error,omitempty"`
	}{Index: r.Index, Pages: r.Pages}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return json.Marshal(out)
}

// BatchProcessor runs many request specs with throttling. Items are
// processed in order; the configured interval is slept between batches, never
// after the last one.
type BatchProcessor struct {
	driver *PaginationDriver
	logger Logger
}

func NewBatchProcessor(driver *PaginationDriver, logger Logger) *BatchProcessor {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	return &BatchProcessor{driver: driver, logger: logger}
}

// Process executes every spec. Without ContinueOnFail the first failure
// aborts the run and the results gathered so far are returned with the error.
// With it, failed items carry an error record in place of their output and
// processing moves on.
func (p *BatchProcessor) Process(ctx context.Context, specs []RequestSpec, batch BatchSpec) ([]ItemResult, error) {
	size := batch.Size
	if size == 0 {
		size = 1
	}
	if size < 0 || size > len(specs) {
		size = len(specs)
	}

	results := make([]ItemResult, 0, len(specs))
	for start := 0; start < len(specs); start += size {
		if start > 0 && batch.IntervalMs > 0 {
			if err := sleepCtx(ctx, time.Duration(batch.IntervalMs)*time.Millisecond); err != nil {
				return results, err
			}
		}

		end := min(start+size, len(specs))
		for i := start; i < end; i++ {
			pages, err := p.driver.Run(ctx, specs[i])
			result := ItemResult{Index: i, Pages: pages, Error: err}

			if err != nil {
				if !batch.ContinueOnFail {
					results = append(results, result)
					return results, err
				}
				p.logger.Warning("item %d failed, continuing: %s", i, err.Error())
				result.Pages = append(result.Pages, errorRecord(specs[i], err))
			}
			results = append(results, result)
		}
	}
	return results, nil
}

// errorRecord is the structured stand-in emitted for a failed item when
// ContinueOnFail is set. The request URL is reported without userinfo or
// query string so credentials never land in downstream data.
func errorRecord(spec RequestSpec, err error) map[string]any {
	spec = spec.withDefaults()
	return map[string]any{
		"error": err.Error(),
		"code":  string(CodeOf(err)),
		"request": map[string]any{
			"url":       sanitizeURL(spec.URL),
			"method":    spec.Method,
			"timeoutMs": spec.TimeoutMs,
		},
	}
}

func sanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Aggregate folds item results into a single output per the aggregation
// spec. A nil spec returns the results unchanged.
func Aggregate(results []ItemResult, agg *AggregationSpec) any {
	if agg == nil {
		return results
	}

	switch agg.Type {
	case AggregateArray:
		flat := make([]any, 0, len(results))
		for _, r := range results {
			flat = append(flat, r.Pages...)
		}
		return flat

	case AggregateMerge:
		merged := make(map[string]any)
		for _, r := range results {
			for _, page := range r.Pages {
				obj, ok := page.(map[string]any)
				if !ok {
					continue
				}
				if agg.DeepMerge {
					merged = deepMergeObjects(merged, obj)
				} else {
					for k, v := range obj {
						merged[k] = v
					}
				}
			}
		}
		return merged

	case AggregateSummary:
		succeeded, failed := 0, 0
		pages := 0
		errs := make([]any, 0)
		for _, r := range results {
			pages += len(r.Pages)
			if r.Error != nil {
				failed++
				errs = append(errs, r.Error.Error())
			} else {
				succeeded++
			}
		}
		summary := map[string]any{
			"total":     len(results),
			"succeeded": succeeded,
			"failed":    failed,
		}
		if len(errs) > 0 {
			summary["errors"] = errs
		}
		if agg.IncludeMetadata {
			summary["pages"] = pages
		}
		return summary

	default:
		return results
	}
}

// deepMergeObjects merges b into a recursively; non-object values from b win.
func deepMergeObjects(a, b map[string]any) map[string]any {
	for k, v := range b {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := a[k].(map[string]any); ok {
				a[k] = deepMergeObjects(existing, sub)
				continue
			}
		}
		a[k] = v
	}
	return a
}
