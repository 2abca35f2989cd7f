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

package flow

import (
	"fmt"
	"strings"

	flowerrors "github.com/tombee/flowgate/pkg/errors"
	"github.com/tombee/flowgate/pkg/naming"
	"gopkg.in/yaml.v3"
)

// IDSource records which signal produced a resolved identifier.
type IDSource string

const (
	IDSourceExplicit IDSource = "explicit"
	IDSourcePurpose  IDSource = "purpose"
	IDSourceDocument IDSource = "document"
	IDSourceFallback IDSource = "fallback"
)

// Resolution is the outcome of identifier resolution.
type Resolution struct {
	// ID is the final identifier written into Document.
	ID string

	// Source is the signal the identifier was derived from.
	Source IDSource

	// Document is a new document carrying ID and a normalized namespace key.
	Document *Document
}

// ChooseID applies the identifier precedence without touching a document:
// an explicit id wins verbatim; otherwise the slug of the purpose hint, then the
// slug of the document's current id, then naming.DefaultRoot, each made unique
// with a fresh suffix. The result is never empty.
func ChooseID(gen *naming.Generator, currentID, explicitID, purposeHint string) (string, IDSource) {
	if id := strings.TrimSpace(explicitID); id != "" {
		return id, IDSourceExplicit
	}
	if slug := naming.Slugify(purposeHint); slug != "" {
		return gen.Unique(slug), IDSourcePurpose
	}
	if slug := naming.Slugify(naming.Root(currentID)); slug != "" {
		return gen.Unique(slug), IDSourceDocument
	}
	return gen.Unique(naming.DefaultRoot), IDSourceFallback
}

// ResolveIdentifier picks the final identifier for doc (see ChooseID) and returns
// a new document with id set and any legacy defaultNamespace alias normalized to
// namespace. The edit is made on the parsed tree, so comments, quoting and the
// order of the remaining keys are preserved.
func ResolveIdentifier(doc *Document, gen *naming.Generator, explicitID, purposeHint string) (*Resolution, error) {
	id, source := ChooseID(gen, doc.ID(), explicitID, purposeHint)

	patched, err := WithID(doc, id)
	if err != nil {
		return nil, err
	}
	return &Resolution{ID: id, Source: source, Document: patched}, nil
}

// WithID returns a copy of doc whose id is set to id. A legacy defaultNamespace
// alias is normalized to namespace in the same edit.
func WithID(doc *Document, id string) (*Document, error) {
	work, err := doc.Clone()
	if err != nil {
		return nil, err
	}

	body := work.body()
	setScalar(body, KeyID, id, prependValue)
	adoptLegacyNamespace(body)

	return work.rebuild()
}

// WithNamespace returns a copy of doc whose namespace is set to namespace.
func WithNamespace(doc *Document, namespace string) (*Document, error) {
	work, err := doc.Clone()
	if err != nil {
		return nil, err
	}

	body := work.body()
	removeKey(body, KeyLegacyNamespace)
	setScalar(body, KeyNamespace, namespace, func(m *yaml.Node, key string, value *yaml.Node) {
		insertAfter(m, KeyID, key, value)
	})

	return work.rebuild()
}

// CheckIdentity reports whether doc is ready to publish: its id and namespace
// must both be present and slug-like.
func CheckIdentity(doc *Document) error {
	if doc == nil {
		return &flowerrors.ValidationError{Field: "document", Message: "no document to publish"}
	}
	fields := []struct {
		key, value, suggestion string
	}{
		{KeyID, doc.ID(), "resolve an identifier or pass a purpose hint instead"},
		{KeyNamespace, doc.Namespace(), "use letters, digits, dots, dashes and underscores"},
	}
	for _, f := range fields {
		switch {
		case f.value == "":
			return &flowerrors.ValidationError{Field: f.key, Message: "document has no " + f.key, Suggestion: f.suggestion}
		case !naming.IsSlugLike(f.value):
			return &flowerrors.ValidationError{
				Field:      f.key,
				Message:    fmt.Sprintf("%q is not a valid %s", f.value, f.key),
				Suggestion: f.suggestion,
			}
		}
	}
	return nil
}
