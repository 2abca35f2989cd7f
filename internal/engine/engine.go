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

// Package engine runs the validation and publication pipeline:
// load, check (parse, validate, repair), resolve identifier, publish.
//
// Every stage reports into a Report. A document that cannot be made valid
// stops the pipeline before any network call; remote outcomes, including
// failures, are recorded in the Report's Publication.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/flowgate/internal/bridge"
	"github.com/tombee/flowgate/internal/log"
	"github.com/tombee/flowgate/internal/publish"
	"github.com/tombee/flowgate/internal/remote"
	"github.com/tombee/flowgate/internal/tracing"
	flowerrors "github.com/tombee/flowgate/pkg/errors"
	"github.com/tombee/flowgate/pkg/flow"
	"github.com/tombee/flowgate/pkg/naming"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoDocument is returned when a request carries no document text and the
// conversation has no current document.
var ErrNoDocument = errors.New("no document: pass document text or set the conversation's current document")

// Defaults are the configured values a request may override.
type Defaults struct {
	// Namespace is assigned to documents that have none.
	Namespace string

	// UIBaseURL roots the links returned for stored workflows and executions.
	UIBaseURL string
}

// Engine runs the pipeline against one remote service. It is safe for
// concurrent use across conversations.
type Engine struct {
	client       *remote.Client
	defaults     Defaults
	gen          *naming.Generator
	logger       *slog.Logger
	tracer       trace.Tracer
	pollInterval time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaults sets the default namespace and UI base URL.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) { e.defaults = d }
}

// WithGenerator sets the identifier generator.
func WithGenerator(gen *naming.Generator) Option {
	return func(e *Engine) { e.gen = gen }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithPollInterval sets how often Execute polls a running execution.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

// New creates an engine publishing through client. client may be nil for an
// engine that only validates.
func New(client *remote.Client, opts ...Option) *Engine {
	e := &Engine{client: client}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaults.Namespace == "" {
		e.defaults.Namespace = flow.DefaultNamespace
	}
	if e.gen == nil {
		e.gen = naming.NewGenerator()
	}
	e.logger = log.WithComponent(log.OrDefault(e.logger), "engine")
	if e.tracer == nil {
		e.tracer = tracing.Tracer()
	}
	return e
}

// Request describes one pipeline run.
type Request struct {
	// Text is the document. When empty the conversation's current document is used.
	Text []byte

	// Conversation scopes shared context. Optional.
	Conversation *bridge.Conversation

	// ExplicitID is used verbatim as the workflow id.
	ExplicitID string

	// PurposeHint is slugified into the id when no explicit id is given.
	PurposeHint string

	// KeepID publishes under the document's own id instead of resolving a new one.
	KeepID bool

	// Namespace overrides the document's namespace.
	Namespace string

	// ServerURL overrides the remote base URL.
	ServerURL string

	// UIBaseURL overrides the UI base URL.
	UIBaseURL string

	// Update replaces an existing workflow instead of creating one.
	Update bool

	// SkipRepair reports diagnostics without attempting fixes.
	SkipRepair bool
}

// Validate loads and checks the requested document without publishing.
func (e *Engine) Validate(ctx context.Context, req Request) (*Report, error) {
	report := &Report{}
	if req.Conversation != nil {
		report.ConversationID = req.Conversation.ID()
	}
	text, err := e.load(ctx, req, report)
	if err != nil {
		return report.fail(StageLoad, err)
	}
	e.check(ctx, text, req, report)
	return report, nil
}

// Publish runs the full pipeline. The error return is set when the pipeline
// stopped before publication: no document, an unusable override, or a document
// that is still invalid after repair. The report is always returned.
func (e *Engine) Publish(ctx context.Context, req Request) (*Report, error) {
	report := &Report{}
	logger := e.logger
	if req.Conversation != nil {
		report.ConversationID = req.Conversation.ID()
		logger = log.WithConversation(logger, report.ConversationID)
	}

	publisher, err := e.publisher(req, logger)
	if err != nil {
		return report.fail(StageLoad, err)
	}

	text, err := e.load(ctx, req, report)
	if err != nil {
		return report.fail(StageLoad, err)
	}

	result := e.check(ctx, text, req, report)
	if !result.Valid {
		logger.WarnContext(ctx, "document is not publishable",
			"diagnostics", len(result.Remaining),
			"fixes", len(result.Fixes),
		)
		return report.fail(StageCheck, result.AsError())
	}

	doc, err := e.resolve(result.Final(), req, report)
	if err != nil {
		return report.fail(StageResolve, err)
	}

	report.Stage = StagePublish
	if req.Update {
		report.Publication, err = publisher.Update(ctx, doc)
	} else {
		report.Publication, err = publisher.Publish(ctx, doc)
	}
	if err != nil {
		return report.fail(StagePublish, err)
	}

	if report.Publication.Succeeded() && req.Conversation != nil {
		req.Conversation.SetDocument(ctx, report.Publication.Source)
	}
	report.Stage = StageDone
	return report, nil
}

// ExecuteRequest describes an execution trigger.
type ExecuteRequest struct {
	Namespace string
	FlowID    string
	Inputs    map[string]string
	Wait      bool
	ServerURL string
	UIBaseURL string
}

// Execute triggers a stored workflow and optionally waits for it to finish.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) (*publish.ExecutionReport, error) {
	if req.Namespace == "" || req.FlowID == "" {
		return nil, &flowerrors.ValidationError{Field: "flow", Message: "namespace and flow id are required"}
	}
	publisher, err := e.publisher(Request{ServerURL: req.ServerURL, UIBaseURL: req.UIBaseURL}, e.logger)
	if err != nil {
		return nil, err
	}
	return publisher.Execute(ctx, req.Namespace, req.FlowID, publish.ExecuteOptions{
		Inputs: req.Inputs,
		Wait:   req.Wait,
	})
}

func (e *Engine) publisher(req Request, logger *slog.Logger) (*publish.Publisher, error) {
	if e.client == nil {
		return nil, &flowerrors.ConfigError{Key: "server", Reason: "no remote service configured"}
	}
	client := e.client
	if req.ServerURL != "" {
		var err error
		if client, err = client.WithBaseURL(req.ServerURL); err != nil {
			return nil, err
		}
	}

	ui := e.defaults.UIBaseURL
	if req.UIBaseURL != "" {
		ui = req.UIBaseURL
	}

	opts := []publish.Option{
		publish.WithGenerator(e.gen),
		publish.WithLinks(remote.Links{UIBaseURL: ui}),
		publish.WithLogger(logger),
		publish.WithTracer(e.tracer),
	}
	if e.pollInterval > 0 {
		opts = append(opts, publish.WithPollInterval(e.pollInterval))
	}
	return publish.New(client, opts...), nil
}

// load returns the document text: the request's own text when present,
// otherwise the conversation's current document.
func (e *Engine) load(ctx context.Context, req Request, report *Report) ([]byte, error) {
	if len(req.Text) > 0 {
		report.Origin = OriginDirect
		return req.Text, nil
	}
	if req.Conversation == nil {
		return nil, ErrNoDocument
	}
	text, ok, err := req.Conversation.CurrentDocument(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read current document: %w", err)
	}
	if !ok {
		return nil, ErrNoDocument
	}
	report.Origin = OriginConversation
	return []byte(text), nil
}

func (e *Engine) check(ctx context.Context, text []byte, req Request, report *Report) *flow.ValidationResult {
	_, span := tracing.StartCheck(ctx, e.tracer)
	defer span.End()

	namespace := e.defaults.Namespace
	if req.Namespace != "" {
		namespace = req.Namespace
	}

	result := flow.Check(text, flow.CheckOptions{
		Repair:     flow.RepairOptions{DefaultNamespace: namespace},
		SkipRepair: req.SkipRepair,
	})
	report.Validation = result

	span.SetAttributes(map[string]any{
		tracing.AttrValid: result.Valid,
		tracing.AttrFixes: len(result.Fixes),
	})
	if result.Err != nil {
		span.RecordError(result.Err)
	}
	for _, fix := range result.Fixes {
		e.logger.DebugContext(ctx, "repair applied", "fix", fix)
	}
	return result
}

func (e *Engine) resolve(doc *flow.Document, req Request, report *Report) (*flow.Document, error) {
	doc, err := e.resolveID(doc, req, report)
	if err != nil {
		return nil, err
	}
	if err := flow.CheckIdentity(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (e *Engine) resolveID(doc *flow.Document, req Request, report *Report) (*flow.Document, error) {
	var err error
	if req.Namespace != "" && req.Namespace != doc.Namespace() {
		if doc, err = flow.WithNamespace(doc, req.Namespace); err != nil {
			return nil, err
		}
	}

	if req.KeepID || req.Update {
		if req.ExplicitID == "" {
			report.ResolvedID, report.IDSource = doc.ID(), flow.IDSourceDocument
			return doc, nil
		}
		if doc, err = flow.WithID(doc, req.ExplicitID); err != nil {
			return nil, err
		}
		report.ResolvedID, report.IDSource = doc.ID(), flow.IDSourceExplicit
		return doc, nil
	}

	res, err := flow.ResolveIdentifier(doc, e.gen, req.ExplicitID, req.PurposeHint)
	if err != nil {
		return nil, err
	}
	report.ResolvedID, report.IDSource = res.ID, res.Source
	return res.Document, nil
}
