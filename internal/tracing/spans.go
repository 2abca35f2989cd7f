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

package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tombee/flowgate"

// Span attribute keys.
const (
	AttrFlowID      = "flow.id"
	AttrNamespace   = "flow.namespace"
	AttrRequestedID = "flow.requested_id"
	AttrAttempt     = "publish.attempt"
	AttrOutcome     = "publish.outcome"
	AttrStatusCode  = "http.response.status_code"
	AttrFixes       = "check.fixes"
	AttrValid       = "check.valid"
	AttrCorrelation = "correlation.id"
)

// Tracer returns the tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Span wraps an OpenTelemetry span with pipeline helpers. A nil *Span is safe to use.
type Span struct {
	span trace.Span
}

func start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	if tracer == nil {
		tracer = Tracer()
	}
	if id := FromContextOrEmpty(ctx); id != "" {
		attrs = append(attrs, attribute.String(AttrCorrelation, id.String()))
	}
	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, &Span{span: span}
}

// StartCheck creates a span covering parse, validation and repair.
func StartCheck(ctx context.Context, tracer trace.Tracer) (context.Context, *Span) {
	return start(ctx, tracer, "flow.check")
}

// StartPublish creates the parent span for one publication.
func StartPublish(ctx context.Context, tracer trace.Tracer, namespace, id string) (context.Context, *Span) {
	return start(ctx, tracer, fmt.Sprintf("flow.publish: %s/%s", namespace, id),
		attribute.String(AttrNamespace, namespace),
		attribute.String(AttrRequestedID, id),
	)
}

// StartAttempt creates a span for a single create request.
func StartAttempt(ctx context.Context, tracer trace.Tracer, n int, id string) (context.Context, *Span) {
	return start(ctx, tracer, "flow.publish.attempt",
		attribute.Int(AttrAttempt, n),
		attribute.String(AttrFlowID, id),
	)
}

// StartExecution creates a span for triggering and polling an execution.
func StartExecution(ctx context.Context, tracer trace.Tracer, namespace, id string) (context.Context, *Span) {
	return start(ctx, tracer, fmt.Sprintf("flow.execute: %s/%s", namespace, id),
		attribute.String(AttrNamespace, namespace),
		attribute.String(AttrFlowID, id),
	)
}

// SetAttributes adds key-value attributes to the span.
func (s *Span) SetAttributes(attrs map[string]any) {
	if s == nil || s.span == nil {
		return
	}

	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			kvs = append(kvs, attribute.String(k, val))
		case int:
			kvs = append(kvs, attribute.Int(k, val))
		case int64:
			kvs = append(kvs, attribute.Int64(k, val))
		case bool:
			kvs = append(kvs, attribute.Bool(k, val))
		case []string:
			kvs = append(kvs, attribute.StringSlice(k, val))
		default:
			kvs = append(kvs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	s.span.SetAttributes(kvs...)
}

// AddEvent records a named event, such as an applied fix.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	if s == nil || s.span == nil {
		return
	}
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetOutcome records a publish outcome. Outcomes other than created mark the span as failed.
func (s *Span) SetOutcome(outcome string) {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetAttributes(attribute.String(AttrOutcome, outcome))
	if outcome == "created" {
		s.span.SetStatus(codes.Ok, "")
		return
	}
	s.span.SetStatus(codes.Error, outcome)
}

// RecordError records an error and marks the span as failed.
func (s *Span) RecordError(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// End marks the span as complete.
func (s *Span) End() {
	if s == nil || s.span == nil {
		return
	}
	s.span.End()
}

// TraceID returns the trace ID as a string, or "" when the span is not recording.
func (s *Span) TraceID() string {
	if s == nil || s.span == nil || !s.span.SpanContext().HasTraceID() {
		return ""
	}
	return s.span.SpanContext().TraceID().String()
}
