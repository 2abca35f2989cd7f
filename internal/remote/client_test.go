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

package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	flowerrors "github.com/tombee/flowgate/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithHTTPClient(server.Client())}, opts...)
	client, err := New(server.URL+"/api/v1/", opts...)
	require.NoError(t, err)
	return client
}

func TestCreateFlow_Success(t *testing.T) {
	source := []byte("id: demo\nnamespace: company.team\ntasks: []\n")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/flows", r.URL.Path)
		assert.Equal(t, ContentTypeYAML, r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, string(source), string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"demo","namespace":"company.team","revision":1}`))
	}, WithToken("secret"))

	flow, err := client.CreateFlow(context.Background(), "company.team", "demo", source)
	require.NoError(t, err)
	assert.Equal(t, &Flow{ID: "demo", Namespace: "company.team", Revision: 1}, flow)
}

func TestCreateFlow_EmptyBodyIsSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	flow, err := client.CreateFlow(context.Background(), "n", "a", []byte("id: a"))
	require.NoError(t, err)
	assert.Empty(t, flow.ID)
}

func TestCreateFlow_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "409 conflict",
			status: http.StatusConflict,
			body:   `{"message":"Flow id 'demo' is taken"}`,
			check: func(t *testing.T, err error) {
				var conflict *flowerrors.ConflictError
				require.True(t, errors.As(err, &conflict))
				assert.Equal(t, "company.team", conflict.Namespace)
				assert.Equal(t, "demo", conflict.ID)
				assert.Equal(t, http.StatusConflict, conflict.StatusCode)
				assert.Equal(t, "Flow id 'demo' is taken", conflict.Message)
			},
		},
		{
			name:   "already exists message on 422",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":"Invalid entity: Flow ALREADY EXISTS"}`,
			check: func(t *testing.T, err error) {
				var conflict *flowerrors.ConflictError
				require.True(t, errors.As(err, &conflict))
				assert.Equal(t, http.StatusUnprocessableEntity, conflict.StatusCode)
			},
		},
		{
			name:   "already exists in details",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":"Invalid entity","_embedded":{"errors":[{"message":"flow already exists","path":"id"}]}}`,
			check: func(t *testing.T, err error) {
				var conflict *flowerrors.ConflictError
				assert.True(t, errors.As(err, &conflict))
			},
		},
		{
			name:   "422 rejection with details",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":"Invalid entity","_embedded":{"errors":[{"message":"must not be null","path":"tasks[0].type"},{"message":"bad retry"}]}}`,
			check: func(t *testing.T, err error) {
				var rejection *flowerrors.RemoteRejection
				require.True(t, errors.As(err, &rejection))
				assert.Equal(t, http.StatusUnprocessableEntity, rejection.StatusCode)
				assert.Equal(t, "Invalid entity", rejection.Message)
				assert.Equal(t, []string{"tasks[0].type: must not be null", "bad retry"}, rejection.Details)
			},
		},
		{
			name:   "string error list",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"bad request"},"errors":["a","b"]}`,
			check: func(t *testing.T, err error) {
				var rejection *flowerrors.RemoteRejection
				require.True(t, errors.As(err, &rejection))
				assert.Equal(t, "bad request", rejection.Message)
				assert.Equal(t, []string{"a", "b"}, rejection.Details)
			},
		},
		{
			name:   "plain text body",
			status: http.StatusInternalServerError,
			body:   "upstream unavailable\n",
			check: func(t *testing.T, err error) {
				var rejection *flowerrors.RemoteRejection
				require.True(t, errors.As(err, &rejection))
				assert.Equal(t, "upstream unavailable", rejection.Message)
				assert.Empty(t, rejection.Details)
			},
		},
		{
			name:   "404 on create is a rejection",
			status: http.StatusNotFound,
			body:   `{"message":"no such route"}`,
			check: func(t *testing.T, err error) {
				var rejection *flowerrors.RemoteRejection
				assert.True(t, errors.As(err, &rejection))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			flow, err := client.CreateFlow(context.Background(), "company.team", "demo", []byte("id: demo"))
			require.Error(t, err)
			assert.Nil(t, flow)
			tt.check(t, err)
		})
	}
}

func TestCreateFlow_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := New(url, WithHTTPClient(&http.Client{}))
	require.NoError(t, err)

	_, err = client.CreateFlow(context.Background(), "n", "a", []byte("id: a"))
	var transport *flowerrors.TransportError
	require.True(t, errors.As(err, &transport))
	assert.Equal(t, "create flow", transport.Op)
	assert.Equal(t, url+"/flows", transport.URL)
}

func TestGetFlow(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/flows/company.team/demo":
			_, _ = w.Write([]byte(`{"id":"demo","namespace":"company.team","revision":3,"source":"id: demo"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	flow, err := client.GetFlow(context.Background(), "company.team", "demo")
	require.NoError(t, err)
	assert.Equal(t, 3, flow.Revision)

	_, err = client.GetFlow(context.Background(), "company.team", "missing")
	var notFound *flowerrors.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "company.team/missing", notFound.ID)
}

func TestUpdateFlow(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/flows/company.team/demo", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"demo","namespace":"company.team","revision":2}`))
	})

	flow, err := client.UpdateFlow(context.Background(), "company.team", "demo", []byte("id: demo"))
	require.NoError(t, err)
	assert.Equal(t, 2, flow.Revision)
}

func TestExecutions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/executions/company.team/demo":
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "world", r.FormValue("name"))
			_, _ = w.Write([]byte(`{"id":"exec1","namespace":"company.team","flowId":"demo","state":{"current":"CREATED"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/executions/exec1":
			_, _ = w.Write([]byte(`{"id":"exec1","namespace":"company.team","flowId":"demo","state":{"current":"success"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	exec, err := client.TriggerExecution(context.Background(), "company.team", "demo", map[string]string{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "exec1", exec.ID)
	assert.False(t, exec.IsTerminal())

	exec, err = client.GetExecution(context.Background(), "exec1")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, exec.Status())
	assert.True(t, exec.IsTerminal())
	assert.True(t, exec.Succeeded())

	_, err = client.GetExecution(context.Background(), "nope")
	var notFound *flowerrors.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestNew_BaseURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "ftp://host", "not a url", "/relative"} {
		_, err := New(raw)
		var cfgErr *flowerrors.ConfigError
		assert.True(t, errors.As(err, &cfgErr), "base %q", raw)
	}

	client, err := New("https://host.example.com/api/v1/?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://host.example.com/api/v1", client.BaseURL())

	other, err := client.WithBaseURL("http://other:8080")
	require.NoError(t, err)
	assert.Equal(t, "http://other:8080", other.BaseURL())
	assert.Equal(t, "https://host.example.com/api/v1", client.BaseURL())
}

func TestLinks(t *testing.T) {
	links := Links{UIBaseURL: "https://ui.example.com/"}

	assert.Equal(t, "https://ui.example.com/ui/flows/company.team/demo", links.FlowURL("company.team", "demo"))
	assert.Equal(t, "https://ui.example.com/ui/executions/company.team/demo/e1", links.ExecutionURL("company.team", "demo", "e1", ""))
	assert.Equal(t, "https://ui.example.com/ui/executions/company.team/demo/e1/gantt", links.ExecutionURL("company.team", "demo", "e1", "gantt"))
	assert.Empty(t, links.FlowURL("", "demo"))
	assert.Empty(t, Links{}.FlowURL("company.team", "demo"))
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(http.StatusConflict, ""))
	assert.True(t, IsConflict(http.StatusBadRequest, "Flow Already Exists"))
	assert.False(t, IsConflict(http.StatusUnprocessableEntity, "invalid"))
}
