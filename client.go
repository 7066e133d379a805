// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"
)

// RunConfig is the file format consumed by NewClientFromConfig: one or more
// request specs plus optional batching.
type RunConfig struct {
	Requests []RequestSpec `yaml:"requests" json:"requests"`
	Batch    BatchSpec     `yaml:"batch,omitempty" json:"batch,omitempty"`
}

// Client is the package entry point. It owns the transport pool and wires
// the builder, executor and pagination driver together; all dependencies are
// injected through setters, never read from process-global state.
type Client struct {
	pool      *AgentPool
	builder   *RequestBuilder
	evaluator Evaluator
	logger    Logger
	transport http.RoundTripper

	driver *PaginationDriver
	batch  *BatchProcessor
}

func NewClient() *Client {
	c := &Client{
		pool:      NewAgentPool(),
		builder:   NewRequestBuilder(),
		evaluator: NewExprEvaluator(),
		logger:    NewDefaultLogger(),
	}
	c.rewire()
	return c
}

// NewClientFromConfig loads and validates a YAML run config. Validation
// problems are returned as a list so callers can report all of them at once.
func NewClientFromConfig(configPath string) (*Client, RunConfig, []ValidationError, error) {
	var cfg RunConfig

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, cfg, nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfg, nil, err
	}

	var errs []ValidationError
	for i, spec := range cfg.Requests {
		for _, e := range ValidateSpec(spec) {
			e.Location = fmt.Sprintf("requests[%d].%s", i, e.Location)
			errs = append(errs, e)
		}
	}
	if len(errs) != 0 {
		return nil, cfg, errs, fmt.Errorf("validation failed")
	}

	return NewClient(), cfg, nil, nil
}

func (c *Client) rewire() {
	executor := NewRequestExecutor(c.pool, c.logger)
	if c.transport != nil {
		executor.SetTransport(c.transport)
	}
	c.driver = NewPaginationDriver(c.builder, executor, c.evaluator, c.logger)
	c.batch = NewBatchProcessor(c.driver, c.logger)
}

// SetTransport replaces the pooled transport with a caller-supplied round
// tripper. Tests use this to stub the network.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.transport = rt
	c.rewire()
}

func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
	c.rewire()
}

// SetEvaluator swaps the pagination expression engine.
func (c *Client) SetEvaluator(evaluator Evaluator) {
	c.evaluator = evaluator
	c.rewire()
}

func (c *Client) SetCredentialSource(source CredentialSource) {
	c.builder.SetCredentialSource(source)
}

func (c *Client) SetBinaryProvider(provider BinaryProvider) {
	c.builder.SetBinaryProvider(provider)
}

func (c *Client) SetOAuth1Signer(signer OAuth1Signer) {
	c.builder.SetOAuth1Signer(signer)
}

// Pool exposes the transport pool, mainly for teardown via Close.
func (c *Client) Pool() *AgentPool {
	return c.pool
}

// Do runs a single spec through the full pipeline, paginating when the spec
// asks for it. The result holds one interpreted output per page. On a
// mid-pagination failure the pages already fetched are returned with the
// error.
func (c *Client) Do(ctx context.Context, spec RequestSpec) ([]any, error) {
	if errs := ValidateSpec(spec); len(errs) != 0 {
		return nil, fmt.Errorf("invalid request spec: %s", errs[0].Error())
	}
	return c.driver.Run(ctx, spec)
}

// DoAll runs many specs with batching and returns the per-item results.
func (c *Client) DoAll(ctx context.Context, specs []RequestSpec, batch BatchSpec) ([]ItemResult, error) {
	for i, spec := range specs {
		if errs := ValidateSpec(spec); len(errs) != 0 {
			return nil, fmt.Errorf("invalid request spec at index %d: %s", i, errs[0].Error())
		}
	}
	return c.batch.Process(ctx, specs, batch)
}

// Close releases pooled transports. The client must not be used afterwards.
func (c *Client) Close() {
	c.pool.Close()
}
