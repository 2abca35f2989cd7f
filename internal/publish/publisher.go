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

// Package publish submits finalized workflow documents to the remote service,
// resolving identifier conflicts with a single renamed retry.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/flowgate/internal/log"
	"github.com/tombee/flowgate/internal/remote"
	"github.com/tombee/flowgate/internal/tracing"
	"github.com/tombee/flowgate/pkg/flow"
	"github.com/tombee/flowgate/pkg/naming"
	"go.opentelemetry.io/otel/trace"
)

// FlowAPI is the subset of the remote service used by the publisher.
// *remote.Client implements it.
type FlowAPI interface {
	CreateFlow(ctx context.Context, namespace, id string, source []byte) (*remote.Flow, error)
	GetFlow(ctx context.Context, namespace, id string) (*remote.Flow, error)
	UpdateFlow(ctx context.Context, namespace, id string, source []byte) (*remote.Flow, error)
	TriggerExecution(ctx context.Context, namespace, id string, inputs map[string]string) (*remote.Execution, error)
	GetExecution(ctx context.Context, executionID string) (*remote.Execution, error)
}

var _ FlowAPI = (*remote.Client)(nil)

// DefaultPollInterval is how often Execute checks a running execution.
const DefaultPollInterval = 2 * time.Second

// Publisher submits documents to one remote service. It holds no per-request
// state and is safe for concurrent use.
type Publisher struct {
	api          FlowAPI
	gen          *naming.Generator
	links        remote.Links
	logger       *slog.Logger
	tracer       trace.Tracer
	pollInterval time.Duration
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithGenerator sets the identifier generator used for conflict retries.
func WithGenerator(gen *naming.Generator) Option {
	return func(p *Publisher) { p.gen = gen }
}

// WithLinks sets the UI link builder used for ExternalURL.
func WithLinks(links remote.Links) Option {
	return func(p *Publisher) { p.links = links }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithTracer sets the tracer. Defaults to the global provider's tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Publisher) { p.tracer = tracer }
}

// WithPollInterval sets how often Execute polls a running execution.
func WithPollInterval(d time.Duration) Option {
	return func(p *Publisher) { p.pollInterval = d }
}

// New creates a publisher for api.
func New(api FlowAPI, opts ...Option) *Publisher {
	p := &Publisher{
		api:          api,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.gen == nil {
		p.gen = naming.NewGenerator()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.tracer == nil {
		p.tracer = tracing.Tracer()
	}
	if p.pollInterval <= 0 {
		p.pollInterval = DefaultPollInterval
	}
	return p
}

// Links returns the UI link builder.
func (p *Publisher) Links() remote.Links {
	return p.links
}

// Publish creates doc on the remote service. When the identifier is taken it
// generates one fresh identifier from the requested one, patches the document
// and submits exactly once more. Other failures are not retried.
//
// Remote outcomes, including failures, are reported in the Publication. The
// error return is reserved for local problems found before anything is sent:
// a missing or malformed id or namespace, or a document that cannot be serialized.
func (p *Publisher) Publish(ctx context.Context, doc *flow.Document) (*Publication, error) {
	if err := flow.CheckIdentity(doc); err != nil {
		return nil, err
	}
	source, err := doc.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}

	ctx, span := tracing.StartPublish(ctx, p.tracer, doc.Namespace(), doc.ID())
	defer span.End()

	pub := &Publication{}
	first := p.create(ctx, 1, doc.Namespace(), doc.ID(), source)
	pub.Attempts = append(pub.Attempts, first)
	pub.Source = string(source)

	if first.Outcome == OutcomeConflict {
		retryID := p.gen.Unique(naming.Root(first.RequestedID))
		retryDoc, err := flow.WithID(doc, retryID)
		if err == nil {
			source, err = retryDoc.Serialize()
		}
		if err != nil {
			span.RecordError(err)
			return pub, fmt.Errorf("failed to rename document after conflict: %w", err)
		}

		conflictRetriesTotal.Inc()
		p.logger.InfoContext(ctx, "identifier taken, retrying under a fresh identifier",
			log.NamespaceKey, first.Namespace,
			log.FlowIDKey, first.RequestedID,
			"retry_id", retryID,
		)

		second := p.create(ctx, 2, retryDoc.Namespace(), retryID, source)
		pub.Attempts = append(pub.Attempts, second)
		pub.Source = string(source)
	}

	span.SetOutcome(string(pub.Final().Outcome))
	return pub, nil
}

func (p *Publisher) create(ctx context.Context, n int, namespace, id string, source []byte) Attempt {
	ctx, span := tracing.StartAttempt(ctx, p.tracer, n, id)
	defer span.End()

	start := time.Now()
	attempt := Attempt{RequestedID: id, Namespace: namespace}

	stored, err := p.api.CreateFlow(ctx, namespace, id, source)
	if err != nil {
		attempt.Outcome = outcomeFor(err, &attempt)
	} else {
		attempt.Outcome = OutcomeCreated
		attempt.ResultingID = id
		if stored != nil && stored.ID != "" {
			attempt.ResultingID = stored.ID
		}
		if stored != nil && stored.Namespace != "" {
			attempt.Namespace = stored.Namespace
		}
		attempt.ExternalURL = p.links.FlowURL(attempt.Namespace, attempt.ResultingID)
	}

	p.observe(ctx, span, n, attempt, time.Since(start))
	return attempt
}

func (p *Publisher) observe(ctx context.Context, span *tracing.Span, n int, a Attempt, elapsed time.Duration) {
	attemptsTotal.WithLabelValues(string(a.Outcome)).Inc()
	attemptDuration.WithLabelValues(string(a.Outcome)).Observe(elapsed.Seconds())

	if a.StatusCode != 0 {
		span.SetAttributes(map[string]any{tracing.AttrStatusCode: a.StatusCode})
	}
	span.SetOutcome(string(a.Outcome))

	attrs := []any{
		log.NamespaceKey, a.Namespace,
		log.FlowIDKey, a.RequestedID,
		log.AttemptKey, n,
		log.OutcomeKey, string(a.Outcome),
		log.DurationKey, elapsed.Milliseconds(),
	}
	switch {
	case a.Outcome.Succeeded():
		p.logger.InfoContext(ctx, "workflow stored", append(attrs, "resulting_id", a.ResultingID)...)
	case a.Outcome == OutcomeConflict:
		p.logger.WarnContext(ctx, "workflow identifier conflict", attrs...)
	default:
		p.logger.ErrorContext(ctx, "workflow submission failed", append(attrs, "status", a.StatusCode, "error", a.Message)...)
	}
}

// Update replaces an existing workflow. A missing workflow is reported as a
// rejected attempt; Update never creates.
func (p *Publisher) Update(ctx context.Context, doc *flow.Document) (*Publication, error) {
	if err := flow.CheckIdentity(doc); err != nil {
		return nil, err
	}
	source, err := doc.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}

	namespace, id := doc.Namespace(), doc.ID()
	ctx, span := tracing.StartPublish(ctx, p.tracer, namespace, id)
	defer span.End()

	start := time.Now()
	attempt := Attempt{RequestedID: id, Namespace: namespace}

	if _, err := p.api.GetFlow(ctx, namespace, id); err != nil {
		attempt.Outcome = outcomeFor(err, &attempt)
	} else if stored, err := p.api.UpdateFlow(ctx, namespace, id, source); err != nil {
		attempt.Outcome = outcomeFor(err, &attempt)
	} else {
		attempt.Outcome = OutcomeUpdated
		attempt.ResultingID = id
		if stored != nil && stored.ID != "" {
			attempt.ResultingID = stored.ID
		}
		attempt.ExternalURL = p.links.FlowURL(namespace, attempt.ResultingID)
	}

	p.observe(ctx, span, 1, attempt, time.Since(start))
	return &Publication{Attempts: []Attempt{attempt}, Source: string(source)}, nil
}

