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
	"sync"
	"time"
)

// Debouncer hands a path to its callback once the path has been quiet for
// the whole window. Editors tend to write a file several times per save, so
// only the last event of a burst counts.
type Debouncer struct {
	window time.Duration
	settle func(path string)

	mu      sync.Mutex
	seq     uint64
	pending map[string]pendingPath // nil after Stop
}

type pendingPath struct {
	seq   uint64
	timer *time.Timer
}

// NewDebouncer returns a Debouncer calling settle from timer goroutines.
func NewDebouncer(window time.Duration, settle func(path string)) *Debouncer {
	return &Debouncer{
		window:  window,
		settle:  settle,
		pending: map[string]pendingPath{},
	}
}

// Add notes an event for path and restarts its window.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return
	}
	if prev, ok := d.pending[path]; ok {
		prev.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending[path] = pendingPath{
		seq:   seq,
		timer: time.AfterFunc(d.window, func() { d.fire(path, seq) }),
	}
}

// fire settles path unless a later Add superseded the timer that called it.
func (d *Debouncer) fire(path string, seq uint64) {
	d.mu.Lock()
	p, ok := d.pending[path]
	if !ok || p.seq != seq {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()

	if d.settle != nil {
		d.settle(path)
	}
}

// Stop drops every pending path. Later Adds are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pending {
		p.timer.Stop()
	}
	d.pending = nil
}

// Pending counts paths still inside their window.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
