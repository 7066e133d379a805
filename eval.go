// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/itchyny/gojq"
)

// PageEnv is the environment pagination expressions are evaluated against.
// Response carries {body, headers, statusCode} of the page just received.
type PageEnv struct {
	Response  map[string]any
	PageCount int
	Request   map[string]any
}

func (e PageEnv) vars() map[string]any {
	return map[string]any{
		"response":  e.Response,
		"pageCount": e.PageCount,
		"request":   e.Request,
	}
}

// Evaluator evaluates pagination expressions. The engine never embeds a
// template language of its own; hosts may substitute their own implementation.
type Evaluator interface {
	// Bool evaluates a completion predicate.
	Bool(expression string, env PageEnv) (bool, error)
	// Value evaluates a parameter or delay expression to its raw result.
	Value(expression string, env PageEnv) (any, error)
}

// ExprEvaluator is the default Evaluator. Programs are compiled once per
// expression and cached; evaluation binds the page environment at run time.
type ExprEvaluator struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{programs: make(map[string]*vm.Program)}
}

func (e *ExprEvaluator) compile(expression string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.programs[expression]; ok {
		return program, nil
	}
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	e.programs[expression] = program
	return program, nil
}

func (e *ExprEvaluator) Value(expression string, env PageEnv) (any, error) {
	program, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	result, err := expr.Run(program, env.vars())
	if err != nil {
		return nil, fmt.Errorf("expression %q failed: %w", expression, err)
	}
	return result, nil
}

func (e *ExprEvaluator) Bool(expression string, env PageEnv) (bool, error) {
	result, err := e.Value(expression, env)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q evaluated to %T, want bool", expression, result)
	}
	return b, nil
}

// jqCache compiles jq selectors once and reuses the compiled code. Used for
// next-URL extraction where a path into the response is more natural than an
// expression.
type jqCache struct {
	mu    sync.Mutex
	codes map[string]*gojq.Code
}

func newJQCache() *jqCache {
	return &jqCache{codes: make(map[string]*gojq.Code)}
}

func (c *jqCache) get(selector string) (*gojq.Code, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if code, ok := c.codes[selector]; ok {
		return code, nil
	}
	query, err := gojq.Parse(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jq selector %q: %w", selector, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("cannot compile jq selector %q: %w", selector, err)
	}
	c.codes[selector] = code
	return code, nil
}

// run evaluates the selector against input and returns the first result.
// A missing path yields nil, not an error.
func (c *jqCache) run(selector string, input any) (any, error) {
	code, err := c.get(selector)
	if err != nil {
		return nil, err
	}
	iter := code.Run(input)
	value, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := value.(error); isErr {
		return nil, fmt.Errorf("jq selector %q failed: %w", selector, err)
	}
	return value, nil
}
