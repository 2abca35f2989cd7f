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
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tombee/flowgate/internal/log"
)

// KeyCurrentDocument holds the text of the document most recently produced in
// a conversation.
const KeyCurrentDocument = "current_document"

// NewConversationID returns a fresh conversation identifier.
func NewConversationID() string {
	return uuid.New().String()
}

// Conversation is the context scope of one logical conversation. One pipeline
// runs per conversation at a time; independent conversations may share a
// Store.
type Conversation struct {
	id     string
	store  Store
	logger *slog.Logger
}

// NewConversation opens the scope id on store. An empty id gets a fresh one.
// A nil logger uses slog.Default.
func NewConversation(store Store, id string, logger *slog.Logger) *Conversation {
	if id == "" {
		id = NewConversationID()
	}
	return &Conversation{
		id:     id,
		store:  store,
		logger: log.WithConversation(log.OrDefault(logger), id),
	}
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string {
	return c.id
}

// Set stores value under key. A failed write is logged and otherwise
// ignored; it returns whether the value was stored.
func (c *Conversation) Set(ctx context.Context, key, value string) bool {
	if err := c.store.Set(ctx, c.id, key, value); err != nil {
		c.logger.WarnContext(ctx, "failed to write conversation context",
			"key", key,
			log.Error(err),
		)
		return false
	}
	return true
}

// Get returns the value under key.
func (c *Conversation) Get(ctx context.Context, key string) (string, bool, error) {
	return c.store.Get(ctx, c.id, key)
}

// Delete removes key.
func (c *Conversation) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.id, key)
}

// Clear removes every value in the conversation. Stores without bulk removal
// fall back to deleting the known keys.
func (c *Conversation) Clear(ctx context.Context) error {
	if clearer, ok := c.store.(Clearer); ok {
		return clearer.Clear(ctx, c.id)
	}
	return c.store.Delete(ctx, c.id, KeyCurrentDocument)
}

// SetDocument records text as the conversation's current document.
func (c *Conversation) SetDocument(ctx context.Context, text string) bool {
	ok := c.Set(ctx, KeyCurrentDocument, text)
	if ok {
		c.logger.DebugContext(ctx, "current document updated", "bytes", len(text))
	}
	return ok
}

// CurrentDocument returns the conversation's current document, if any.
func (c *Conversation) CurrentDocument(ctx context.Context) (string, bool, error) {
	text, ok, err := c.Get(ctx, KeyCurrentDocument)
	if err != nil || !ok || text == "" {
		return "", false, err
	}
	return text, true, nil
}
