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

package bridge

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/flowgate/internal/bridge/memory"
	flowerrors "github.com/tombee/flowgate/pkg/errors"
)

// failingStore rejects every write.
type failingStore struct {
	*memory.Store
}

func (failingStore) Set(context.Context, string, string, string) error {
	return errors.New("disk full")
}

func TestConversation_DocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	conv := NewConversation(memory.New(), "c1", nil)

	_, ok, err := conv.CurrentDocument(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, conv.SetDocument(ctx, "id: a\n"))
	assert.True(t, conv.SetDocument(ctx, "id: b\n"))

	text, ok, err := conv.CurrentDocument(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "id: b\n", text)
}

func TestConversation_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := NewConversation(store, "a", nil)
	b := NewConversation(store, "b", nil)

	a.SetDocument(ctx, "doc-a")

	_, ok, err := b.CurrentDocument(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Clear(ctx))
	text, ok, _ := a.CurrentDocument(ctx)
	assert.True(t, ok)
	assert.Equal(t, "doc-a", text)
}

func TestConversation_GeneratesID(t *testing.T) {
	a := NewConversation(memory.New(), "", nil)
	b := NewConversation(memory.New(), "", nil)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestConversation_WriteErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	conv := NewConversation(failingStore{memory.New()}, "c1", logger)

	assert.False(t, conv.SetDocument(context.Background(), "id: a\n"))
	assert.Contains(t, buf.String(), "failed to write conversation context")
	assert.Contains(t, buf.String(), "disk full")
	assert.Contains(t, buf.String(), "conversation_id=c1")
}

func TestConversation_ConcurrentConversations(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv := NewConversation(store, NewConversationID(), nil)
			text := string(rune('a' + i))
			conv.SetDocument(ctx, text)
			got, ok, err := conv.CurrentDocument(ctx)
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, text, got)
		}(i)
	}
	wg.Wait()
}

func TestOpen(t *testing.T) {
	store, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)

	store, err = Open(Config{Backend: "SQLite", Path: filepath.Join(t.TempDir(), "nested", "ctx.db")})
	require.NoError(t, err)
	defer Close(store)

	conv := NewConversation(store, "persisted", nil)
	require.True(t, conv.SetDocument(context.Background(), "id: a\n"))
	text, ok, err := conv.CurrentDocument(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "id: a\n", text)
}

func TestOpen_ConfigErrors(t *testing.T) {
	for _, cfg := range []Config{
		{Backend: "sqlite"},
		{Backend: "redis"},
	} {
		_, err := Open(cfg)
		var cfgErr *flowerrors.ConfigError
		require.True(t, errors.As(err, &cfgErr), "backend %q", cfg.Backend)
		assert.Contains(t, cfgErr.Key, "bridge.")
	}
}
