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
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tombee/flowgate/internal/log"
)

// DefaultDebounce is how long a file must be quiet before it is handled.
const DefaultDebounce = 200 * time.Millisecond

// Handler processes one changed document path.
type Handler func(ctx context.Context, path string)

// Config configures a Watcher.
type Config struct {
	// Root is the directory watched recursively.
	Root string

	// Include and Exclude filter file paths. Nil slices use the defaults.
	Include []string
	Exclude []string

	// Debounce is the quiet period per file. Zero uses DefaultDebounce.
	Debounce time.Duration

	Logger *slog.Logger
}

// Watcher wraps an fsnotify watcher over a directory tree.
type Watcher struct {
	root     string
	matcher  *Matcher
	debounce time.Duration
	fsw      *fsnotify.Watcher
	logger   *slog.Logger

	ready     chan string
	stopCh    chan struct{}
	closeOnce sync.Once
}

// New creates a watcher for cfg.Root and every directory below it.
func New(cfg Config) (*Watcher, error) {
	include := cfg.Include
	if include == nil {
		include = DefaultIncludePatterns()
	}
	exclude := cfg.Exclude
	if exclude == nil {
		exclude = DefaultExcludePatterns()
	}
	matcher, err := NewMatcher(include, exclude)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		root:     root,
		matcher:  matcher,
		debounce: debounce,
		fsw:      fsw,
		logger:   log.WithComponent(log.OrDefault(cfg.Logger), "watch").With(slog.String("root", root)),
		ready:    make(chan string),
		stopCh:   make(chan struct{}),
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Files lists the documents currently under the root that pass the filters, sorted.
func (w *Watcher) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.matcher.Match(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// Run delivers settled changes to handler until ctx is cancelled, then
// releases the watcher. Handler calls happen on the caller's goroutine.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	debouncer := NewDebouncer(w.debounce, func(path string) {
		select {
		case w.ready <- path:
		case <-w.stopCh:
		}
	})
	defer func() {
		debouncer.Stop()
		w.Close()
	}()

	w.logger.Info("watching for changes")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil
		case path := <-w.ready:
			handler(ctx, path)
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.filter(event); ok {
				debouncer.Add(path)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", log.Error(err))
		}
	}
}

// Close releases the fsnotify watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopCh)
		err = w.fsw.Close()
	})
	return err
}

// filter turns an fsnotify event into a document path worth handling.
// New directories are added to the watch.
func (w *Watcher) filter(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		w.logger.Debug("failed to stat changed path", slog.String("path", event.Name), log.Error(err))
		return "", false
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) && !skipDir(info.Name()) {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", slog.String("path", event.Name), log.Error(err))
			}
		}
		return "", false
	}
	if !w.matcher.Match(event.Name) {
		return "", false
	}
	return event.Name, true
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}
