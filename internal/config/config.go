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

// Package config loads flowgate's configuration from a YAML file, applies
// defaults and environment overrides, and validates the result.
//
// Precedence, lowest first: built-in defaults, config file, environment,
// command-line flags (applied by the caller).
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/flowgate/internal/bridge"
	"github.com/tombee/flowgate/internal/remote"
	"github.com/tombee/flowgate/internal/secrets"
	"github.com/tombee/flowgate/internal/tracing"
	flowerrors "github.com/tombee/flowgate/pkg/errors"
	"github.com/tombee/flowgate/pkg/flow"
	"github.com/tombee/flowgate/pkg/naming"
	"gopkg.in/yaml.v3"
)

// Config represents the complete flowgate configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Log     LogConfig      `yaml:"log"`
	Bridge  bridge.Config  `yaml:"bridge"`
	Tracing tracing.Config `yaml:"tracing"`
	MCP     MCPConfig      `yaml:"mcp"`
}

// ServerConfig describes the remote orchestration service.
type ServerConfig struct {
	// URL is the API base URL, such as http://localhost:8080/api/v1.
	// Environment: FLOWGATE_SERVER
	URL string `yaml:"url"`

	// UIURL roots the web UI links printed after publishing.
	// Environment: FLOWGATE_UI_URL
	UIURL string `yaml:"ui_url,omitempty"`

	// Namespace is assigned to documents that have none.
	// Environment: FLOWGATE_NAMESPACE
	Namespace string `yaml:"namespace"`

	// APIToken is sent as a bearer token. May be a reference such as
	// keychain:flowgate or env:MY_TOKEN, expanded by ResolveSecrets.
	// Environment: FLOWGATE_API_TOKEN
	APIToken string `yaml:"api_token,omitempty"`

	// Timeout bounds each HTTP request. Zero leaves timeouts to the caller's context.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// PollInterval is how often a waited execution is polled. Zero uses the default.
	// Environment: FLOWGATE_POLL_INTERVAL
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// RateLimit caps requests per second to the remote. Zero means unlimited.
	RateLimit float64 `yaml:"rate_limit,omitempty"`

	// OAuth2 switches authentication to the client credentials grant. The
	// client secret may be a secret reference.
	// Environment: FLOWGATE_OAUTH2_CLIENT_SECRET
	OAuth2 *remote.OAuth2Config `yaml:"oauth2,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`

	// AddSource adds source file and line to each entry.
	AddSource bool `yaml:"add_source,omitempty"`
}

// MCPConfig configures the MCP tool server.
type MCPConfig struct {
	// RateLimit is the sustained number of tool calls per second.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the number of tool calls allowed at once.
	Burst int `yaml:"burst"`

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// Default returns a configuration with defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configPath (or the default config file when configPath is empty
// and the file exists), applies defaults and environment overrides, and validates.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	path := configPath
	if path == "" {
		if p, err := ConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &flowerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	// Defaults fill whatever the file left empty
	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.URL == "" {
		c.Server.URL = "http://localhost:8080/api/v1"
	}
	if c.Server.Namespace == "" {
		c.Server.Namespace = flow.DefaultNamespace
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Bridge.Backend == "" {
		c.Bridge.Backend = bridge.BackendMemory
	}
	if c.Bridge.Path == "" {
		c.Bridge.Path = filepath.Join(DataDir(), "context.db")
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = tracing.ExporterNone
	}
	if c.MCP.RateLimit == 0 {
		c.MCP.RateLimit = 5
	}
	if c.MCP.Burst == 0 {
		c.MCP.Burst = 10
	}
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("FLOWGATE_SERVER"); val != "" {
		c.Server.URL = val
	}
	if val := os.Getenv("FLOWGATE_UI_URL"); val != "" {
		c.Server.UIURL = val
	}
	if val := os.Getenv("FLOWGATE_NAMESPACE"); val != "" {
		c.Server.Namespace = val
	}
	if val := os.Getenv("FLOWGATE_API_TOKEN"); val != "" {
		c.Server.APIToken = val
	}
	if val := os.Getenv("FLOWGATE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Server.Timeout = d
		}
	}

	if val := os.Getenv("FLOWGATE_OAUTH2_CLIENT_SECRET"); val != "" && c.Server.OAuth2 != nil {
		c.Server.OAuth2.ClientSecret = val
	}

	if val := os.Getenv("FLOWGATE_POLL_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Server.PollInterval = d
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("FLOWGATE_BRIDGE_BACKEND"); val != "" {
		c.Bridge.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("FLOWGATE_BRIDGE_PATH"); val != "" {
		c.Bridge.Path = val
	}

	if val := os.Getenv("FLOWGATE_TRACING_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}

	if val := os.Getenv("FLOWGATE_MCP_RATE_LIMIT"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.MCP.RateLimit = rate
		}
	}
}

// Validate checks the configuration. Failures are reported together in a
// single ConfigError.
func (c *Config) Validate() error {
	var errs []string

	if _, err := remote.ParseBaseURL(c.Server.URL); err != nil {
		errs = append(errs, fmt.Sprintf("server.url: %q is not an absolute http(s) URL", c.Server.URL))
	}
	if c.Server.UIURL != "" {
		if _, err := remote.ParseBaseURL(c.Server.UIURL); err != nil {
			errs = append(errs, fmt.Sprintf("server.ui_url: %q is not an absolute http(s) URL", c.Server.UIURL))
		}
	}
	if !naming.IsSlugLike(c.Server.Namespace) {
		errs = append(errs, fmt.Sprintf("server.namespace: %q is not a valid namespace", c.Server.Namespace))
	}
	if c.Server.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("server.timeout must not be negative, got %v", c.Server.Timeout))
	}
	if c.Server.PollInterval < 0 {
		errs = append(errs, fmt.Sprintf("server.poll_interval must not be negative, got %v", c.Server.PollInterval))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("server.rate_limit must not be negative, got %v", c.Server.RateLimit))
	}
	errs = append(errs, c.Server.OAuth2.Problems("server.oauth2")...)

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	switch c.Bridge.Backend {
	case bridge.BackendMemory, bridge.BackendSQLite:
	default:
		errs = append(errs, fmt.Sprintf("bridge.backend must be one of [memory, sqlite], got %q", c.Bridge.Backend))
	}

	switch c.Tracing.Exporter {
	case tracing.ExporterNone, tracing.ExporterConsole, tracing.ExporterOTLP, tracing.ExporterOTLPHTTP:
	default:
		errs = append(errs, fmt.Sprintf("tracing.exporter must be one of [none, console, otlp, otlp-http], got %q", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}

	if c.MCP.RateLimit <= 0 {
		errs = append(errs, fmt.Sprintf("mcp.rate_limit must be positive, got %v", c.MCP.RateLimit))
	}
	if c.MCP.Burst < 1 {
		errs = append(errs, fmt.Sprintf("mcp.burst must be at least 1, got %d", c.MCP.Burst))
	}

	if len(errs) > 0 {
		return &flowerrors.ConfigError{
			Key:    "validation",
			Reason: strings.Join(errs, "; "),
		}
	}
	return nil
}

// ResolveSecrets expands secret references in the API token and the OAuth2
// client secret.
func (c *Config) ResolveSecrets(ctx context.Context, resolver *secrets.Resolver) error {
	type target struct {
		key   string
		value *string
	}
	targets := []target{{"server.api_token", &c.Server.APIToken}}
	if c.Server.OAuth2 != nil {
		targets = append(targets, target{"server.oauth2.client_secret", &c.Server.OAuth2.ClientSecret})
	}
	for _, t := range targets {
		if !secrets.IsReference(*t.value) {
			continue
		}
		secret, err := resolver.Resolve(ctx, *t.value)
		if err != nil {
			return &flowerrors.ConfigError{Key: t.key, Reason: "cannot resolve secret reference", Cause: err}
		}
		*t.value = secret
	}
	return nil
}

// Save writes the configuration to path with owner-only permissions.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
