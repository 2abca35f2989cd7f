// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jq evaluates jq expressions against decoded JSON values.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout bounds a single evaluation.
	DefaultTimeout = time.Second

	// DefaultMaxInputSize is the largest input accepted, measured as encoded JSON (1MB).
	DefaultMaxInputSize = 1 << 20
)

// Query is a compiled jq expression. It is safe for concurrent use.
type Query struct {
	expression   string
	code         *gojq.Code
	timeout      time.Duration
	maxInputSize int
}

// Compile parses and compiles expression.
func Compile(expression string) (*Query, error) {
	parsed, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}
	return &Query{
		expression:   expression,
		code:         code,
		timeout:      DefaultTimeout,
		maxInputSize: DefaultMaxInputSize,
	}, nil
}

// MustCompile is like Compile but panics on error. Intended for package-level queries.
func MustCompile(expression string) *Query {
	q, err := Compile(expression)
	if err != nil {
		panic(err)
	}
	return q
}

func (q *Query) String() string {
	return q.expression
}

// Run evaluates the query against data and collects every result.
func (q *Query) Run(ctx context.Context, data any) ([]any, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	var results []any
	iter := q.code.RunWithContext(ctx, data)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if halt, ok := err.(*gojq.HaltError); ok && halt.Value() == nil {
				break
			}
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}

// Strings evaluates the query against a raw JSON body and returns the string
// results. Bodies that are not JSON, or are too large, yield no results.
func (q *Query) Strings(ctx context.Context, body []byte) []string {
	if len(body) == 0 || len(body) > q.maxInputSize {
		return nil
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil
	}

	results, err := q.Run(ctx, data)
	if err != nil {
		return nil
	}

	out := make([]string, 0, len(results))
	for _, r := range results {
		if s, ok := r.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
