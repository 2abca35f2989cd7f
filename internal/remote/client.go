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

// Package remote is the HTTP client for the orchestration service's flow and
// execution API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"

	flowerrors "github.com/tombee/flowgate/pkg/errors"
	"github.com/tombee/flowgate/pkg/httpclient"
)

// ContentTypeYAML is the media type used for workflow sources.
const ContentTypeYAML = "application/x-yaml"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

// Client talks to a single remote service. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	token      string
	oauth      *OAuth2Config
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// New creates a client for the service at baseURL. Every API path is resolved
// relative to baseURL, so a base of https://host/api/v1 targets https://host/api/v1/flows.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{baseURL: base}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.httpClient == nil {
		cfg := httpclient.DefaultConfig()
		cfg.Logger = c.logger
		client, err := httpclient.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		c.httpClient = client
	}
	if c.oauth != nil {
		c.httpClient = c.oauth.authorize(c.httpClient)
	}

	return c, nil
}

// ParseBaseURL validates an absolute http(s) base URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &flowerrors.ConfigError{Key: "server", Reason: "remote base URL is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &flowerrors.ConfigError{Key: "server", Reason: "invalid remote base URL", Cause: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &flowerrors.ConfigError{Key: "server", Reason: fmt.Sprintf("remote base URL must be absolute http(s), got %q", raw)}
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery, u.Fragment = "", ""
	return u, nil
}

// BaseURL returns the base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// WithBaseURL returns a copy of c targeting another base URL. It shares the
// HTTP client, token and logger.
func (c *Client) WithBaseURL(baseURL string) (*Client, error) {
	base, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	clone := *c
	clone.baseURL = base
	return &clone, nil
}

// Flow is the remote representation of a stored workflow.
type Flow struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Revision  int    `json:"revision,omitempty"`
	Source    string `json:"source,omitempty"`
	Disabled  bool   `json:"disabled,omitempty"`
}

// CreateFlow submits a new workflow source. namespace and id are the values
// written in source and are used to describe a conflict.
func (c *Client) CreateFlow(ctx context.Context, namespace, id string, source []byte) (*Flow, error) {
	var flow Flow
	err := c.do(ctx, request{
		op:          "create flow",
		method:      http.MethodPost,
		path:        "flows",
		contentType: ContentTypeYAML,
		body:        source,
		namespace:   namespace,
		id:          id,
	}, &flow)
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

// GetFlow fetches a stored workflow. A missing flow yields *errors.NotFoundError.
func (c *Client) GetFlow(ctx context.Context, namespace, id string) (*Flow, error) {
	var flow Flow
	err := c.do(ctx, request{
		op:        "get flow",
		method:    http.MethodGet,
		path:      joinPath("flows", namespace, id),
		namespace: namespace,
		id:        id,
		resource:  "flow",
	}, &flow)
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

// UpdateFlow replaces the source of an existing workflow.
func (c *Client) UpdateFlow(ctx context.Context, namespace, id string, source []byte) (*Flow, error) {
	var flow Flow
	err := c.do(ctx, request{
		op:          "update flow",
		method:      http.MethodPut,
		path:        joinPath("flows", namespace, id),
		contentType: ContentTypeYAML,
		body:        source,
		namespace:   namespace,
		id:          id,
		resource:    "flow",
	}, &flow)
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

// TriggerExecution starts a run of a stored workflow. Inputs are sent as
// multipart form fields.
func (c *Client) TriggerExecution(ctx context.Context, namespace, id string, inputs map[string]string) (*Execution, error) {
	req := request{
		op:        "trigger execution",
		method:    http.MethodPost,
		path:      joinPath("executions", namespace, id),
		namespace: namespace,
		id:        id,
		resource:  "flow",
	}

	if len(inputs) > 0 {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		keys := make([]string, 0, len(inputs))
		for k := range inputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := w.WriteField(k, inputs[k]); err != nil {
				return nil, fmt.Errorf("failed to encode input %s: %w", k, err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode inputs: %w", err)
		}
		req.body = buf.Bytes()
		req.contentType = w.FormDataContentType()
	}

	var exec Execution
	if err := c.do(ctx, req, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// GetExecution fetches the current state of an execution.
func (c *Client) GetExecution(ctx context.Context, executionID string) (*Execution, error) {
	var exec Execution
	err := c.do(ctx, request{
		op:       "get execution",
		method:   http.MethodGet,
		path:     joinPath("executions", executionID),
		id:       executionID,
		resource: "execution",
	}, &exec)
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

type request struct {
	op          string
	method      string
	path        string
	contentType string
	body        []byte

	// namespace and id describe the target for conflict and not-found errors.
	namespace string
	id        string

	// resource enables mapping 404 to NotFoundError.
	resource string
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + "/" + path
}

// joinPath joins escaped path segments.
func joinPath(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	target := c.endpoint(r.path)

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if rej, ok := tokenRejection(err); ok {
			observeRequest(r.op, "auth")
			return rej
		}
		observeRequest(r.op, "error")
		return &flowerrors.TransportError{Op: r.op, URL: redactURL(target), Cause: err}
	}
	defer resp.Body.Close()
	observeRequest(r.op, statusClass(resp.StatusCode))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &flowerrors.TransportError{Op: r.op, URL: redactURL(target), Cause: err}
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			c.logger.WarnContext(ctx, "ignoring undecodable response body",
				"op", r.op,
				"status", resp.StatusCode,
				"error", err.Error(),
			)
		}
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &flowerrors.TransportError{Op: r.op, URL: redactURL(target), Cause: err}
	}
	return classify(ctx, r, resp.StatusCode, data)
}

func (c *Client) addAuth(req *http.Request) {
	if c.token != "" && c.oauth == nil {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.User = nil
	return u.String()
}
