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

// Package log configures the structured slog logger shared by every flowgate
// component and defines the standard field keys.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format represents the log output format.
type Format string

const (
	// FormatJSON outputs logs in JSON format for machine parsing.
	FormatJSON Format = "json"
	// FormatText outputs logs in human-readable text format.
	FormatText Format = "text"
)

// LevelTrace sits below Debug and carries request and response bodies.
const LevelTrace = slog.Level(-8)

// Standard field keys for structured logging.
const (
	ConversationKey = "conversation_id"
	CorrelationKey  = "correlation_id"
	FlowIDKey       = "flow_id"
	NamespaceKey    = "namespace"
	OutcomeKey      = "outcome"
	AttemptKey      = "attempt"
	ComponentKey    = "component"
	DurationKey     = "duration_ms"
	EventKey        = "event"
)

// redactedKeys are attribute keys whose values never reach the output.
var redactedKeys = map[string]bool{
	"api_token":     true,
	"token":         true,
	"authorization": true,
	"password":      true,
	"secret":        true,
}

// Redacted replaces the value of a sensitive attribute.
const Redacted = "[REDACTED]"

// Config holds the logging configuration.
type Config struct {
	// Level is trace, debug, info, warn or error. Default: info
	Level string

	// Format is json or text. Default: json
	Format Format

	// Output defaults to os.Stderr.
	Output io.Writer

	// AddSource adds source file and line information to logs.
	AddSource bool
}

// DefaultConfig returns info-level JSON logging to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// ApplyEnv overlays developer overrides on cfg:
//   - FLOWGATE_DEBUG=1|true forces debug level with source locations
//   - FLOWGATE_LOG_LEVEL sets the level when FLOWGATE_DEBUG is unset
func ApplyEnv(cfg *Config) {
	switch debug := strings.ToLower(os.Getenv("FLOWGATE_DEBUG")); debug {
	case "1", "true":
		cfg.Level = "debug"
		cfg.AddSource = true
		return
	}
	if level := os.Getenv("FLOWGATE_LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}
}

// New creates a logger from cfg. Sensitive attributes are redacted and the
// trace level prints as TRACE.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: replaceAttr,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
			return slog.String(slog.LevelKey, "TRACE")
		}
		return a
	}
	if redactedKeys[strings.ToLower(a.Key)] && a.Value.String() != "" {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel converts a level name to slog.Level. Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OrDefault returns logger, or slog.Default() when it is nil.
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// WithComponent tags entries with the producing component.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(ComponentKey, component)
}

// WithConversation scopes logger to one conversation.
func WithConversation(logger *slog.Logger, conversationID string) *slog.Logger {
	return logger.With(slog.String(ConversationKey, conversationID))
}

// WithFlow adds workflow namespace and id fields.
func WithFlow(logger *slog.Logger, namespace, id string) *slog.Logger {
	return logger.With(
		slog.String(NamespaceKey, namespace),
		slog.String(FlowIDKey, id),
	)
}

// Error creates an error attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
