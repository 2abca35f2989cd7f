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

package shared

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/tombee/flowgate/internal/bridge"
	"github.com/tombee/flowgate/internal/config"
	"github.com/tombee/flowgate/internal/engine"
	"github.com/tombee/flowgate/internal/log"
	"github.com/tombee/flowgate/internal/remote"
	"github.com/tombee/flowgate/internal/secrets"
	"github.com/tombee/flowgate/internal/tracing"
	"github.com/tombee/flowgate/pkg/httpclient"
)

// Runtime holds the components a command needs, built from configuration.
type Runtime struct {
	Config *config.Config
	Logger *slog.Logger
	Client *remote.Client
	Engine *engine.Engine
	Store  bridge.Store

	shutdown tracing.ShutdownFunc
}

// LoadConfig loads configuration from the --config path.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewConfigError("", err)
	}
	return cfg, nil
}

// NewLogger builds the command logger. FLOWGATE_DEBUG and FLOWGATE_LOG_LEVEL
// override the config file; --verbose raises the level to debug and --quiet
// lowers it to error.
func NewLogger(cfg *config.Config) *slog.Logger {
	lc := &log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	}
	log.ApplyEnv(lc)
	switch {
	case GetVerbose():
		lc.Level = "debug"
	case GetQuiet():
		lc.Level = "error"
	}
	return log.New(lc)
}

// NewRuntime loads configuration and wires the logger, tracing, the context
// store, the remote client and the engine. Callers must Close it.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewRuntimeFromConfig(ctx, cfg)
}

// NewRuntimeFromConfig is NewRuntime for an already loaded configuration.
func NewRuntimeFromConfig(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	logger := NewLogger(cfg)
	slog.SetDefault(logger)

	if err := cfg.ResolveSecrets(ctx, secrets.DefaultResolver()); err != nil {
		return nil, NewConfigError("", err)
	}

	v, _, _ := GetVersion()
	tc := cfg.Tracing
	tc.ServiceName = "flowgate"
	tc.ServiceVersion = v
	shutdown, err := tracing.Setup(ctx, tc)
	if err != nil {
		return nil, NewConfigError("failed to set up tracing", err)
	}

	hc := httpclient.DefaultConfig()
	hc.Timeout = cfg.Server.Timeout
	hc.RequestsPerSecond = cfg.Server.RateLimit
	hc.UserAgent = "flowgate/" + v
	hc.Logger = logger
	httpClient, err := httpclient.New(hc)
	if err != nil {
		_ = shutdown(ctx)
		return nil, NewConfigError("failed to create HTTP client", err)
	}

	opts := []remote.Option{
		remote.WithHTTPClient(httpClient),
		remote.WithToken(cfg.Server.APIToken),
		remote.WithLogger(logger),
	}
	if cfg.Server.OAuth2.Enabled() {
		opts = append(opts, remote.WithOAuth2(*cfg.Server.OAuth2))
	}
	client, err := remote.New(cfg.Server.URL, opts...)
	if err != nil {
		_ = shutdown(ctx)
		return nil, NewConfigError("", err)
	}

	store, err := bridge.Open(cfg.Bridge)
	if err != nil {
		_ = shutdown(ctx)
		return nil, NewConfigError("", err)
	}

	eng := engine.New(client,
		engine.WithDefaults(engine.Defaults{
			Namespace: cfg.Server.Namespace,
			UIBaseURL: cfg.Server.UIURL,
		}),
		engine.WithLogger(logger),
		engine.WithPollInterval(cfg.Server.PollInterval),
	)

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Client:   client,
		Engine:   eng,
		Store:    store,
		shutdown: shutdown,
	}, nil
}

// Conversation opens the conversation scope id, or a fresh one when id is empty.
func (r *Runtime) Conversation(id string) *bridge.Conversation {
	return bridge.NewConversation(r.Store, id, r.Logger)
}

// Close flushes spans and releases the context store.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.shutdown != nil {
		errs = append(errs, r.shutdown(ctx))
	}
	if r.Store != nil {
		errs = append(errs, bridge.Close(r.Store))
	}
	return errors.Join(errs...)
}
