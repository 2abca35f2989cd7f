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

// Package bridge carries values, chiefly the current workflow document,
// between the steps of one conversation.
//
// A Store holds values keyed by (conversation, key). Callers do not use it
// directly; they open a Conversation scope and pass it explicitly to every
// step that needs shared state. Writes are last-write-wins.
package bridge

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tombee/flowgate/internal/bridge/memory"
	"github.com/tombee/flowgate/internal/bridge/sqlite"
	flowerrors "github.com/tombee/flowgate/pkg/errors"
)

// Store is a key/value store scoped by conversation.
type Store interface {
	// Get returns the value under key and whether it was present.
	Get(ctx context.Context, conversation, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, conversation, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, conversation, key string) error
}

// Clearer is an optional interface for removing a whole conversation.
//
//	if c, ok := store.(Clearer); ok {
//	    err := c.Clear(ctx, conversationID)
//	}
type Clearer interface {
	Clear(ctx context.Context, conversation string) error
}

// Compile-time interface assertions.
var (
	_ Store     = (*memory.Store)(nil)
	_ Clearer   = (*memory.Store)(nil)
	_ io.Closer = (*memory.Store)(nil)
	_ Store     = (*sqlite.Store)(nil)
	_ Clearer   = (*sqlite.Store)(nil)
	_ io.Closer = (*sqlite.Store)(nil)
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config selects and configures a store backend.
type Config struct {
	// Backend is "memory" (default) or "sqlite".
	Backend string `yaml:"backend,omitempty"`

	// Path is the SQLite database file. Required for the sqlite backend.
	Path string `yaml:"path,omitempty"`
}

// Open creates the store described by cfg. The caller closes it when it
// implements io.Closer.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return memory.New(), nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, &flowerrors.ConfigError{Key: "bridge.path", Reason: "required for the sqlite backend"}
		}
		store, err := sqlite.New(sqlite.Config{Path: cfg.Path, WAL: true})
		if err != nil {
			return nil, &flowerrors.ConfigError{Key: "bridge.path", Reason: "cannot open database", Cause: err}
		}
		return store, nil
	default:
		return nil, &flowerrors.ConfigError{
			Key:    "bridge.backend",
			Reason: fmt.Sprintf("unknown backend %q (expected %s or %s)", cfg.Backend, BackendMemory, BackendSQLite),
		}
	}
}

// Close closes store if it holds resources.
func Close(store Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
