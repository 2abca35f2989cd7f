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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/flowgate/internal/remote"
	"github.com/tombee/flowgate/internal/secrets"
	flowerrors "github.com/tombee/flowgate/pkg/errors"
	"github.com/zalando/go-keyring"
)

// isolate points XDG directories at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	for _, key := range []string{
		"FLOWGATE_SERVER", "FLOWGATE_UI_URL", "FLOWGATE_NAMESPACE", "FLOWGATE_API_TOKEN",
		"FLOWGATE_TIMEOUT", "FLOWGATE_BRIDGE_BACKEND", "FLOWGATE_BRIDGE_PATH",
		"FLOWGATE_TRACING_EXPORTER", "OTEL_EXPORTER_OTLP_ENDPOINT", "FLOWGATE_MCP_RATE_LIMIT",
		"FLOWGATE_POLL_INTERVAL", "FLOWGATE_OAUTH2_CLIENT_SECRET",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api/v1", cfg.Server.URL)
	assert.Equal(t, "company.team", cfg.Server.Namespace)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Bridge.Backend)
	assert.Equal(t, filepath.Join(dir, "flowgate", "context.db"), cfg.Bridge.Path)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
	assert.Equal(t, 5.0, cfg.MCP.RateLimit)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `
server:
  url: https://orchestrator.example.com/api/v1
  ui_url: https://orchestrator.example.com
  namespace: ops.data
  timeout: 30s
bridge:
  backend: sqlite
  path: /tmp/ctx.db
log:
  level: debug
`)

	t.Setenv("FLOWGATE_NAMESPACE", "ops.override")
	t.Setenv("FLOWGATE_API_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://orchestrator.example.com/api/v1", cfg.Server.URL)
	assert.Equal(t, "https://orchestrator.example.com", cfg.Server.UIURL)
	assert.Equal(t, "ops.override", cfg.Server.Namespace)
	assert.Equal(t, "secret", cfg.Server.APIToken)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "sqlite", cfg.Bridge.Backend)
	assert.Equal(t, "/tmp/ctx.db", cfg.Bridge.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_DefaultFileLocation(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "flowgate"), 0700))
	writeConfig(t, filepath.Join(dir, "flowgate"), "server:\n  namespace: from.file\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from.file", cfg.Server.Namespace)
}

func TestLoad_Errors(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	var cfgErr *flowerrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "config_file", cfgErr.Key)

	path := writeConfig(t, dir, "server: [")
	_, err = Load(path)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "config_file", cfgErr.Key)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "relative server url", mutate: func(c *Config) { c.Server.URL = "/api" }, want: "server.url"},
		{name: "bad ui url", mutate: func(c *Config) { c.Server.UIURL = "ftp://x" }, want: "server.ui_url"},
		{name: "bad namespace", mutate: func(c *Config) { c.Server.Namespace = "has space" }, want: "server.namespace"},
		{name: "negative timeout", mutate: func(c *Config) { c.Server.Timeout = -time.Second }, want: "server.timeout"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, want: "log.level"},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, want: "log.format"},
		{name: "bridge backend", mutate: func(c *Config) { c.Bridge.Backend = "redis" }, want: "bridge.backend"},
		{name: "exporter", mutate: func(c *Config) { c.Tracing.Exporter = "zipkin" }, want: "tracing.exporter"},
		{name: "sample rate", mutate: func(c *Config) { c.Tracing.SampleRate = 2 }, want: "tracing.sample_rate"},
		{name: "rate limit", mutate: func(c *Config) { c.MCP.RateLimit = -1 }, want: "mcp.rate_limit"},
		{
			name:   "partial oauth2",
			mutate: func(c *Config) { c.Server.OAuth2 = &remote.OAuth2Config{ClientID: "flowgate"} },
			want:   "server.oauth2.token_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolveSecrets(t *testing.T) {
	keyring.MockInit()
	resolver := secrets.NewResolver(secrets.NewEnvBackend(), secrets.NewKeychainBackend())
	require.NoError(t, resolver.Set(context.Background(), "prod", "tok-123", "keychain"))

	cfg := Default()
	cfg.Server.APIToken = "keychain:prod"
	require.NoError(t, cfg.ResolveSecrets(context.Background(), resolver))
	assert.Equal(t, "tok-123", cfg.Server.APIToken)

	cfg.Server.APIToken = "literal"
	require.NoError(t, cfg.ResolveSecrets(context.Background(), resolver))
	assert.Equal(t, "literal", cfg.Server.APIToken)

	cfg.Server.APIToken = "keychain:absent"
	var cfgErr *flowerrors.ConfigError
	assert.True(t, errors.As(cfg.ResolveSecrets(context.Background(), resolver), &cfgErr))
	assert.Equal(t, "server.api_token", cfgErr.Key)
}

func TestResolveSecrets_OAuth2ClientSecret(t *testing.T) {
	keyring.MockInit()
	resolver := secrets.NewResolver(secrets.NewEnvBackend(), secrets.NewKeychainBackend())
	require.NoError(t, resolver.Set(context.Background(), "oauth", "client-secret", "keychain"))

	cfg := Default()
	cfg.Server.OAuth2 = &remote.OAuth2Config{
		TokenURL:     "https://auth.example.com/token",
		ClientID:     "flowgate",
		ClientSecret: "keychain:oauth",
	}
	require.NoError(t, cfg.ResolveSecrets(context.Background(), resolver))
	assert.Equal(t, "client-secret", cfg.Server.OAuth2.ClientSecret)
}

func TestLoad_OAuth2SecretFromEnv(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `server:
  oauth2:
    token_url: https://auth.example.com/token
    client_id: flowgate
    client_secret: from-file
`)
	t.Setenv("FLOWGATE_OAUTH2_CLIENT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Server.OAuth2)
	assert.Equal(t, "from-env", cfg.Server.OAuth2.ClientSecret)
	assert.Equal(t, "flowgate", cfg.Server.OAuth2.ClientID)
}

func TestSave_RoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := Default()
	cfg.Server.Namespace = "ops.saved"
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ops.saved", loaded.Server.Namespace)
}
