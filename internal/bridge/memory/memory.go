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

// Package memory provides an in-memory bridge store.
package memory

import (
	"context"
	"sync"
)

// Store keeps values in process memory. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[string]map[string]string)}
}

// Get returns the value stored under key in conversation.
func (s *Store) Get(ctx context.Context, conversation, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[conversation][key]
	return value, ok, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, conversation, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.values[conversation]
	if !ok {
		scope = make(map[string]string)
		s.values[conversation] = scope
	}
	scope[key] = value
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, conversation, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope := s.values[conversation]
	delete(scope, key)
	if len(scope) == 0 {
		delete(s.values, conversation)
	}
	return nil
}

// Clear removes every key in conversation.
func (s *Store) Clear(ctx context.Context, conversation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, conversation)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
