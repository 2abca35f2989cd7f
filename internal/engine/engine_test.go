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

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/flowgate/internal/bridge"
	"github.com/tombee/flowgate/internal/bridge/memory"
	"github.com/tombee/flowgate/internal/log"
	"github.com/tombee/flowgate/internal/publish"
	"github.com/tombee/flowgate/internal/remote"
	flowerrors "github.com/tombee/flowgate/pkg/errors"
	"github.com/tombee/flowgate/pkg/flow"
	"github.com/tombee/flowgate/pkg/naming"
)

// fakeRemote is an in-memory orchestration service.
type fakeRemote struct {
	mu      sync.Mutex
	flows   map[string]string
	creates []string
	updates int
}

func newFakeRemote(existing ...string) *fakeRemote {
	f := &fakeRemote{flows: make(map[string]string)}
	for _, key := range existing {
		f.flows[key] = "existing"
	}
	return f
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost && path == "flows":
		body, _ := io.ReadAll(r.Body)
		f.creates = append(f.creates, string(body))
		doc, err := flow.Parse(body)
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"Invalid entity"}`))
			return
		}
		key := doc.Namespace() + "/" + doc.ID()
		if _, taken := f.flows[key]; taken {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"Flow id '` + doc.ID() + `' already exists"}`))
			return
		}
		f.flows[key] = string(body)
		writeJSON(w, http.StatusOK, map[string]any{"id": doc.ID(), "namespace": doc.Namespace(), "revision": 1})

	case strings.HasPrefix(path, "flows/"):
		key := strings.TrimPrefix(path, "flows/")
		if _, ok := f.flows[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		parts := strings.SplitN(key, "/", 2)
		if r.Method == http.MethodPut {
			body, _ := io.ReadAll(r.Body)
			f.flows[key] = string(body)
			f.updates++
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": parts[1], "namespace": parts[0], "revision": 2})

	case r.Method == http.MethodPost && strings.HasPrefix(path, "executions/"):
		parts := strings.Split(strings.TrimPrefix(path, "executions/"), "/")
		writeJSON(w, http.StatusOK, map[string]any{
			"id": "exec-1", "namespace": parts[0], "flowId": parts[1],
			"state": map[string]any{"current": "RUNNING"},
		})

	case r.Method == http.MethodGet && path == "executions/exec-1":
		writeJSON(w, http.StatusOK, map[string]any{
			"id": "exec-1", "namespace": "company.team", "flowId": "hello",
			"state": map[string]any{"current": "SUCCESS"},
		})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestEngine(t *testing.T, handler http.Handler, opts ...Option) *Engine {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := remote.New(server.URL, remote.WithHTTPClient(server.Client()), remote.WithLogger(log.Discard()))
	require.NoError(t, err)

	fixed := time.UnixMilli(1700000000000)
	base := []Option{
		WithLogger(log.Discard()),
		WithDefaults(Defaults{Namespace: "company.team", UIBaseURL: "https://ui.example.com"}),
		WithGenerator(naming.NewGenerator(
			naming.WithClock(func() time.Time { return fixed }),
			naming.WithRandom(func(n int) string { return strings.Repeat("b", n) }),
		)),
		WithPollInterval(time.Millisecond),
	}
	return New(client, append(base, opts...)...)
}

const helloFlow = `id: hello
namespace: company.team
tasks:
  - id: say
    type: io.kestra.plugin.core.log.Log
    message: hi
`

func TestPublish_ConflictResolvedByRename(t *testing.T) {
	fake := newFakeRemote("company.team/hello")
	e := newTestEngine(t, fake)

	report, err := e.Publish(context.Background(), Request{Text: []byte(helloFlow), ExplicitID: "hello"})
	require.NoError(t, err)

	assert.Equal(t, StageDone, report.Stage)
	assert.Equal(t, OriginDirect, report.Origin)
	assert.Equal(t, "hello", report.ResolvedID)
	assert.Equal(t, flow.IDSourceExplicit, report.IDSource)

	require.Len(t, fake.creates, 2)
	pub := report.Publication
	require.Len(t, pub.Attempts, 2)
	assert.Equal(t, publish.OutcomeConflict, pub.Attempts[0].Outcome)
	assert.Equal(t, publish.OutcomeCreated, pub.Attempts[1].Outcome)
	assert.Equal(t, "hello-loyw3v28-bbbbbbbb", pub.Attempts[1].ResultingID)
	assert.NotEqual(t, pub.Attempts[1].RequestedID, pub.Attempts[0].RequestedID)
	assert.Equal(t, "https://ui.example.com/ui/flows/company.team/hello-loyw3v28-bbbbbbbb", report.FinalAttempt().ExternalURL)
	assert.True(t, report.Published())
}

func TestPublish_ResolvesPurposeHint(t *testing.T) {
	fake := newFakeRemote()
	e := newTestEngine(t, fake)

	report, err := e.Publish(context.Background(), Request{Text: []byte(helloFlow), PurposeHint: "Nightly Report"})
	require.NoError(t, err)

	assert.Equal(t, "nightly-report-loyw3v28-bbbbbbbb", report.ResolvedID)
	assert.Equal(t, flow.IDSourcePurpose, report.IDSource)
	require.Len(t, fake.creates, 1)
	assert.Contains(t, fake.creates[0], "id: nightly-report-loyw3v28-bbbbbbbb")
}

func TestPublish_InvalidDocumentStopsBeforeNetwork(t *testing.T) {
	fake := newFakeRemote()
	e := newTestEngine(t, fake)

	report, err := e.Publish(context.Background(), Request{Text: []byte(`{id: "", namespace: "", tasks: []}`)})
	require.Error(t, err)

	var structural *flowerrors.StructuralError
	require.True(t, errors.As(err, &structural))
	assert.Equal(t, StageCheck, report.Stage)
	assert.Equal(t, []string{
		"id must not be empty",
		"namespace must not be empty",
		"tasks: at least one task required",
	}, report.Validation.Errors)
	assert.False(t, report.Validation.Valid)
	assert.Nil(t, report.Publication)
	assert.Empty(t, fake.creates)
}

func TestPublish_SyntaxErrorStopsBeforeNetwork(t *testing.T) {
	fake := newFakeRemote()
	e := newTestEngine(t, fake)

	report, err := e.Publish(context.Background(), Request{Text: []byte("id: [unclosed\n")})

	var syntax *flowerrors.SyntaxError
	require.True(t, errors.As(err, &syntax))
	assert.Equal(t, StageCheck, report.Stage)
	assert.Empty(t, report.Validation.Fixes)
	assert.Empty(t, fake.creates)
}

func TestPublish_RepairsBeforePublishing(t *testing.T) {
	fake := newFakeRemote()
	e := newTestEngine(t, fake)

	text := "id: hello\ntasks:\n  - type: log\n    retry: \"3\"\n"
	report, err := e.Publish(context.Background(), Request{Text: []byte(text), KeepID: true})
	require.NoError(t, err)

	assert.Equal(t, []string{
		`namespace: set to default "company.team"`,
		`tasks[0].id: generated "task-1"`,
		`tasks[0].retry: rewrote "3" as {type: constant, maxAttempt: 3}`,
	}, report.Validation.Fixes)
	require.Len(t, fake.creates, 1)
	assert.Contains(t, fake.creates[0], "namespace: company.team")
	assert.Contains(t, fake.creates[0], "maxAttempt: 3")
	assert.Equal(t, "hello", report.FinalAttempt().ResultingID)
}

func TestPublish_RejectsNonSlugIdentity(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		req       Request
		wantField string
	}{
		{
			name:      "explicit id",
			text:      helloFlow,
			req:       Request{ExplicitID: "My Flow / v2"},
			wantField: flow.KeyID,
		},
		{
			name:      "kept document id",
			text:      strings.Replace(helloFlow, "id: hello", "id: \"hello world\"", 1),
			req:       Request{KeepID: true},
			wantField: flow.KeyID,
		},
		{
			name:      "document namespace",
			text:      strings.Replace(helloFlow, "namespace: company.team", "namespace: \"My Team!\"", 1),
			wantField: flow.KeyNamespace,
		},
		{
			name:      "namespace override",
			text:      helloFlow,
			req:       Request{KeepID: true, Namespace: "ops team"},
			wantField: flow.KeyNamespace,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeRemote()
			e := newTestEngine(t, fake)

			req := tt.req
			req.Text = []byte(tt.text)
			report, err := e.Publish(context.Background(), req)

			var validation *flowerrors.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tt.wantField, validation.Field)
			assert.Equal(t, StageResolve, report.Stage)
			assert.False(t, report.Published())
			assert.Empty(t, fake.creates)
		})
	}
}

func TestPublish_NamespaceOverride(t *testing.T) {
	fake := newFakeRemote()
	e := newTestEngine(t, fake)

	report, err := e.Publish(context.Background(), Request{Text: []byte(helloFlow), KeepID: true, Namespace: "ops.nightly"})
	require.NoError(t, err)
	assert.Equal(t, "ops.nightly", report.FinalAttempt().Namespace)
	assert.Contains(t, fake.flows, "ops.nightly/hello")
}

func TestPublish_ServerOverride(t *testing.T) {
	primary := newFakeRemote()
	other := newFakeRemote()
	e := newTestEngine(t, primary)

	server := httptest.NewServer(other)
	defer server.Close()

	report, err := e.Publish(context.Background(), Request{
		Text:      []byte(helloFlow),
		KeepID:    true,
		ServerURL: server.URL,
		UIBaseURL: "https://other-ui.example.com/",
	})
	require.NoError(t, err)

	assert.Empty(t, primary.creates)
	assert.Len(t, other.creates, 1)
	assert.Equal(t, "https://other-ui.example.com/ui/flows/company.team/hello", report.FinalAttempt().ExternalURL)
}

func TestPublish_BadServerOverride(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())

	report, err := e.Publish(context.Background(), Request{Text: []byte(helloFlow), ServerURL: "not a url"})
	var cfgErr *flowerrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, StageLoad, report.Stage)
}

func TestPublish_UsesConversationDocument(t *testing.T) {
	fake := newFakeRemote()
	e := newTestEngine(t, fake)
	ctx := context.Background()

	conv := bridge.NewConversation(memory.New(), "conv-1", log.Discard())

	_, err := e.Publish(ctx, Request{Conversation: conv})
	assert.ErrorIs(t, err, ErrNoDocument)

	conv.SetDocument(ctx, helloFlow)
	report, err := e.Publish(ctx, Request{Conversation: conv, PurposeHint: "hello"})
	require.NoError(t, err)

	assert.Equal(t, OriginConversation, report.Origin)
	assert.Equal(t, "conv-1", report.ConversationID)

	current, ok, err := conv.CurrentDocument(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, current, "id: "+report.ResolvedID)
}

func TestPublish_DirectTextWinsOverConversation(t *testing.T) {
	fake := newFakeRemote()
	e := newTestEngine(t, fake)
	ctx := context.Background()

	conv := bridge.NewConversation(memory.New(), "conv-1", log.Discard())
	conv.SetDocument(ctx, strings.Replace(helloFlow, "id: hello", "id: stale", 1))

	report, err := e.Publish(ctx, Request{Text: []byte(helloFlow), Conversation: conv, KeepID: true})
	require.NoError(t, err)
	assert.Equal(t, OriginDirect, report.Origin)
	assert.Equal(t, "hello", report.ResolvedID)
}

func TestPublish_Update(t *testing.T) {
	fake := newFakeRemote("company.team/hello")
	e := newTestEngine(t, fake)

	report, err := e.Publish(context.Background(), Request{Text: []byte(helloFlow), Update: true})
	require.NoError(t, err)
	assert.Equal(t, publish.OutcomeUpdated, report.FinalAttempt().Outcome)
	assert.Equal(t, 1, fake.updates)
	assert.Empty(t, fake.creates)

	report, err = e.Publish(context.Background(), Request{Text: []byte(helloFlow), Update: true, ExplicitID: "missing"})
	require.NoError(t, err)
	assert.Equal(t, publish.OutcomeRejected, report.FinalAttempt().Outcome)
}

func TestValidate(t *testing.T) {
	e := New(nil, WithLogger(log.Discard()))

	report, err := e.Validate(context.Background(), Request{Text: []byte("id: a\ntasks:\n  - id: t\n    type: log\n")})
	require.NoError(t, err)
	assert.True(t, report.Validation.Valid)
	assert.Equal(t, []string{"namespace is required"}, report.Validation.Errors)
	assert.Equal(t, "company.team", report.Validation.Fixed.Namespace())

	_, err = e.Publish(context.Background(), Request{Text: []byte(helloFlow)})
	var cfgErr *flowerrors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestExecute(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())

	report, err := e.Execute(context.Background(), ExecuteRequest{Namespace: "company.team", FlowID: "hello", Wait: true})
	require.NoError(t, err)
	assert.Equal(t, remote.StateSuccess, report.State)
	assert.True(t, report.Succeeded)
	assert.Equal(t, "https://ui.example.com/ui/executions/company.team/hello/exec-1", report.ExternalURL)

	_, err = e.Execute(context.Background(), ExecuteRequest{Namespace: "company.team"})
	var validation *flowerrors.ValidationError
	assert.True(t, errors.As(err, &validation))
}
