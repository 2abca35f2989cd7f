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

// Package tracing provides correlation IDs and OpenTelemetry spans for the
// check and publish pipeline.
package tracing

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// CorrelationID identifies one pipeline run across log lines, spans and
// outbound requests. It is a hyphenated RFC 4122 UUID.
type CorrelationID string

type correlationKey struct{}

// HeaderCorrelationID is sent on every request to the remote service.
const HeaderCorrelationID = "X-Correlation-ID"

// NewCorrelationID generates a new correlation ID.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

func (c CorrelationID) String() string {
	return string(c)
}

// IsValid reports whether c is a hyphenated UUID.
func (c CorrelationID) IsValid() bool {
	if len(c) != 36 {
		return false
	}
	_, err := uuid.Parse(string(c))
	return err == nil
}

// ToContext attaches id to ctx.
func ToContext(ctx context.Context, id CorrelationID) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// FromContextOrEmpty returns the correlation ID carried by ctx, or "".
func FromContextOrEmpty(ctx context.Context) CorrelationID {
	id, _ := ctx.Value(correlationKey{}).(CorrelationID)
	return id
}

// EnsureContext returns ctx carrying a correlation ID, adding a new one if needed.
func EnsureContext(ctx context.Context) (context.Context, CorrelationID) {
	if id := FromContextOrEmpty(ctx); id != "" {
		return ctx, id
	}
	id := NewCorrelationID()
	return ToContext(ctx, id), id
}

// CorrelationRoundTripper stamps outbound requests with the context's
// correlation ID and W3C trace context, so the remote service can join its
// logs to the publish attempt that caused them.
type CorrelationRoundTripper struct {
	Transport http.RoundTripper

	// Propagator defaults to the global OpenTelemetry propagator.
	Propagator propagation.TextMapPropagator
}

// RoundTrip implements http.RoundTripper. The caller's request is not modified.
func (t *CorrelationRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	req = req.Clone(ctx)

	if id := FromContextOrEmpty(ctx); id != "" && req.Header.Get(HeaderCorrelationID) == "" {
		req.Header.Set(HeaderCorrelationID, id.String())
	}

	prop := t.Propagator
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}
	prop.Inject(ctx, propagation.HeaderCarrier(req.Header))

	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return transport.RoundTrip(req)
}
