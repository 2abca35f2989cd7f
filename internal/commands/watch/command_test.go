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

package watch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/flowgate/internal/bridge"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/internal/log"
	fswatch "github.com/tombee/flowgate/internal/watch"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "context.db")
	cfg := fmt.Sprintf("log:\n  level: error\nbridge:\n  backend: sqlite\n  path: %s\n", dbPath)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	shared.SetConfigPathForTest(path)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })
	return dbPath
}

func defaultOptions() options {
	return options{
		namespace: "company.team",
		include:   fswatch.DefaultIncludePatterns(),
		exclude:   fswatch.DefaultExcludePatterns(),
		debounce:  20 * time.Millisecond,
	}
}

func TestWatch_InitialPassAndChanges(t *testing.T) {
	dbPath := setup(t)
	flows := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(flows, "a.yaml"),
		[]byte("id: a\nnamespace: company.team\ntasks:\n  - id: t\n    type: log\n"), 0o644))

	opts := defaultOptions()
	opts.conversation = "conv-watch"

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, out, flows, opts) }()

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("watching"))
	}, 3*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "a.yaml")

	// A broken document is reported.
	require.NoError(t, os.WriteFile(filepath.Join(flows, "b.yaml"),
		[]byte("id: b\nnamespace: company.team\ntasks: []\n"), 0o644))
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("tasks: at least one task required"))
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}

	// The valid document from the initial pass became the conversation's document.
	store, err := bridge.Open(bridge.Config{Backend: bridge.BackendSQLite, Path: dbPath})
	require.NoError(t, err)
	defer bridge.Close(store)

	text, ok, err := bridge.NewConversation(store, "conv-watch", log.Discard()).CurrentDocument(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, text, "id: a")
}

func TestWatch_MissingDirectory(t *testing.T) {
	setup(t)

	err := run(context.Background(), &syncBuffer{}, filepath.Join(t.TempDir(), "missing"), defaultOptions())
	require.Error(t, err)
	assert.Equal(t, shared.ExitFailed, shared.ExitCode(err))
}
