// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// PaginationDriver runs the page loop for one request spec: it derives each
// follow-up request from the previous response, enforces completion policies
// and page limits, and collects the interpreted page outputs.
//
// On a mid-loop failure the pages fetched so far are returned alongside the
// error, so callers keep partial progress instead of losing paid-for work.
type PaginationDriver struct {
	builder     *RequestBuilder
	executor    *RequestExecutor
	interpreter ResponseInterpreter
	evaluator   Evaluator
	jq          *jqCache
	logger      Logger
}

func NewPaginationDriver(builder *RequestBuilder, executor *RequestExecutor, evaluator Evaluator, logger Logger) *PaginationDriver {
	if evaluator == nil {
		evaluator = NewExprEvaluator()
	}
	if logger == nil {
		logger = NewDefaultLogger()
	}
	return &PaginationDriver{
		builder:   builder,
		executor:  executor,
		evaluator: evaluator,
		jq:        newJQCache(),
		logger:    logger,
	}
}

// Run executes the spec, paginating when configured. The returned slice holds
// one interpreted output per page, in fetch order.
func (d *PaginationDriver) Run(ctx context.Context, spec RequestSpec) ([]any, error) {
	pg := spec.Pagination
	if pg == nil || pg.Mode == "" || pg.Mode == PaginationOff {
		out, err := d.fetchOne(ctx, spec, pageOverrides{})
		if out == nil && err != nil {
			return nil, err
		}
		return []any{out}, err
	}

	var (
		results   []any
		env       PageEnv
		overrides pageOverrides
		pageCount int
	)

	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		// env.PageCount counts pages already fetched, so an expression like
		// pageCount + 1 yields the number of the page being derived.
		if pageCount > 0 {
			next, stop, err := d.nextOverrides(pg, env)
			if err != nil {
				return results, err
			}
			if stop {
				return results, nil
			}
			overrides = next
		}

		built, err := d.builder.BuildRequest(ctx, spec, &overrides)
		if err != nil {
			return results, err
		}
		resp, err := d.executor.Do(ctx, built)
		if resp == nil {
			return results, err
		}

		pageCount++
		env.PageCount = pageCount
		env.Response = responseEnv(resp)
		env.Request = map[string]any{
			"url":    built.req.URL.String(),
			"method": built.req.Method,
		}

		// A completion status is a terminal success even when it would
		// otherwise count as an HTTP error.
		statusComplete := pg.CompleteWhen == CompleteOnStatusCodes &&
			slices.Contains(pg.StatusCodesComplete, resp.StatusCode)

		if err != nil && !(statusComplete && CodeOf(err) == CodeHTTPStatus) {
			return results, err
		}

		out, err := d.interpreter.Interpret(resp, spec)
		if err != nil {
			return results, err
		}
		results = append(results, out)
		d.logger.Debug("page %d fetched (%d)", pageCount, resp.StatusCode)

		if statusComplete {
			return results, nil
		}

		done, err := d.isComplete(pg, resp, env)
		if err != nil {
			return results, err
		}
		if done {
			return results, nil
		}
		if pg.PageLimit > 0 && pageCount >= pg.PageLimit {
			d.logger.Debug("page limit of %d reached", pg.PageLimit)
			return results, nil
		}

		if err := d.delayBetweenPages(ctx, pg, env); err != nil {
			return results, err
		}
	}
}

func (d *PaginationDriver) fetchOne(ctx context.Context, spec RequestSpec, ov pageOverrides) (any, error) {
	built, err := d.builder.BuildRequest(ctx, spec, &ov)
	if err != nil {
		return nil, err
	}
	resp, httpErr := d.executor.Do(ctx, built)
	if resp == nil {
		return nil, httpErr
	}
	out, err := d.interpreter.Interpret(resp, spec)
	if err != nil {
		return nil, err
	}
	return out, httpErr
}

// nextOverrides derives the follow-up request from the previous page. The
// stop flag is set when next-URL extraction yields nothing.
func (d *PaginationDriver) nextOverrides(pg *PaginationSpec, env PageEnv) (pageOverrides, bool, error) {
	var ov pageOverrides

	switch pg.Mode {
	case PaginationNextURL:
		value, err := d.jq.run(pg.NextURL, env.Response)
		if err != nil {
			return ov, false, err
		}
		next, _ := value.(string)
		if next == "" {
			return ov, true, nil
		}
		ov.url = next

	case PaginationUpdateParameter:
		for _, param := range pg.Parameters {
			value, err := d.paramValue(param.Value, env)
			if err != nil {
				return ov, false, err
			}
			switch param.Slot {
			case SlotQuery:
				if ov.query == nil {
					ov.query = make(map[string]string, len(pg.Parameters))
				}
				ov.query[param.Name] = fmt.Sprint(value)
			case SlotHeader:
				if ov.headers == nil {
					ov.headers = make(map[string]string, len(pg.Parameters))
				}
				ov.headers[param.Name] = fmt.Sprint(value)
			case SlotBody:
				if ov.body == nil {
					ov.body = make(map[string]any, len(pg.Parameters))
				}
				ov.body[param.Name] = value
			default:
				return ov, false, fmt.Errorf("unknown pagination parameter slot: %s", param.Slot)
			}
		}

	default:
		return ov, false, fmt.Errorf("unknown pagination mode: %s", pg.Mode)
	}
	return ov, false, nil
}

// paramValue resolves a pagination parameter value: text wrapped in {{ }} is
// evaluated as an expression, anything else is taken literally.
func (d *PaginationDriver) paramValue(raw string, env PageEnv) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		expression := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		return d.evaluator.Value(expression, env)
	}
	return raw, nil
}

func (d *PaginationDriver) isComplete(pg *PaginationSpec, resp *Response, env PageEnv) (bool, error) {
	switch pg.CompleteWhen {
	case CompleteOnEmptyResponse:
		return isEmptyBody(resp.Body), nil
	case CompleteOnPredicate:
		return d.evaluator.Bool(pg.CompleteExpression, env)
	default:
		return false, nil
	}
}

// delayBetweenPages sleeps before the next page is requested; it never runs
// after the final page. An interval expression is evaluated fresh per page
// and takes precedence over the fixed interval.
func (d *PaginationDriver) delayBetweenPages(ctx context.Context, pg *PaginationSpec, env PageEnv) error {
	intervalMs := pg.IntervalMs
	if pg.IntervalExpression != "" {
		value, err := d.evaluator.Value(pg.IntervalExpression, env)
		if err != nil {
			return err
		}
		ms, err := toMilliseconds(value)
		if err != nil {
			return fmt.Errorf("interval expression %q: %w", pg.IntervalExpression, err)
		}
		intervalMs = ms
	}
	if intervalMs <= 0 {
		return nil
	}

	timer := time.NewTimer(time.Duration(intervalMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func toMilliseconds(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("evaluated to %T, want a number of milliseconds", value)
	}
}

// responseEnv shapes a response for expressions and jq selectors: the body is
// decoded when it is JSON and kept as a string otherwise. Values stay within
// the types gojq accepts as input.
func responseEnv(resp *Response) map[string]any {
	var body any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		body = string(resp.Body)
	}
	headers := make(map[string]any, len(resp.Headers))
	for name, value := range flattenHeaders(resp.Headers) {
		headers[name] = value
	}
	return map[string]any{
		"body":       body,
		"headers":    headers,
		"statusCode": resp.StatusCode,
	}
}

func isEmptyBody(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return true
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return false
	}
	switch v := decoded.(type) {
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	case nil:
		return true
	default:
		return false
	}
}
