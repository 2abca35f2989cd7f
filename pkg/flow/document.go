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

// Package flow parses, validates, repairs and re-identifies declarative
// workflow documents destined for a remote orchestration engine.
//
// A Document keeps the original text alongside a yaml.v3 node tree. All
// transformations work on a copy of the tree and produce a new Document by
// re-serializing and re-parsing it, so comments, key order and scalar styles
// survive every edit and a transformed document is always known to parse.
package flow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	flowerrors "github.com/tombee/flowgate/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Well-known document keys.
const (
	KeyID              = "id"
	KeyNamespace       = "namespace"
	KeyDescription     = "description"
	KeyTasks           = "tasks"
	KeyLegacyNamespace = "defaultNamespace"
	KeyTaskType        = "type"
	KeyTaskRetry       = "retry"
	KeyTaskEnv         = "env"
	KeyRetryType       = "type"
	KeyRetryMaxAttempt = "maxAttempt"
)

// RetryTypeConstant is the retry policy type produced by the repair engine.
const RetryTypeConstant = "constant"

const indentSpaces = 2

var yamlLinePattern = regexp.MustCompile(`^yaml: line (\d+): (.*)$`)

// Document is a parsed workflow document.
// Raw is immutable; the node tree is private and only changed through
// functions that return a new Document.
type Document struct {
	raw  []byte
	root *yaml.Node
}

// Parse parses document text. It fails with *errors.SyntaxError when the text is
// not valid YAML, is empty, holds more than one document, or its root is not a mapping.
func Parse(text []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(text))

	var root yaml.Node
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &flowerrors.SyntaxError{Message: "document is empty"}
		}
		return nil, syntaxError(err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return nil, &flowerrors.SyntaxError{Message: "multiple documents are not supported"}
	} else if !errors.Is(err, io.EOF) {
		return nil, syntaxError(err)
	}

	body := contentOf(&root)
	if body == nil {
		return nil, &flowerrors.SyntaxError{Message: "document is empty"}
	}
	if body.Kind != yaml.MappingNode {
		return nil, &flowerrors.SyntaxError{
			Line:    body.Line,
			Column:  body.Column,
			Message: "document root must be a mapping",
		}
	}

	raw := make([]byte, len(text))
	copy(raw, text)
	return &Document{raw: raw, root: &root}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and fixtures.
func MustParse(text string) *Document {
	doc, err := Parse([]byte(text))
	if err != nil {
		panic(err)
	}
	return doc
}

// syntaxError converts a yaml.v3 error into a SyntaxError with its line number when present.
func syntaxError(err error) *flowerrors.SyntaxError {
	msg := err.Error()
	if m := yamlLinePattern.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		return &flowerrors.SyntaxError{Line: line, Message: m[2], Cause: err}
	}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		msg = typeErr.Errors[0]
	}
	return &flowerrors.SyntaxError{Message: strings.TrimPrefix(msg, "yaml: "), Cause: err}
}

// Raw returns the text the document was parsed from.
func (d *Document) Raw() []byte {
	out := make([]byte, len(d.raw))
	copy(out, d.raw)
	return out
}

// Serialize renders the current node tree. Comments and key order are preserved;
// indentation is normalized to two spaces.
func (d *Document) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(indentSpaces)
	if err := enc.Encode(d.root); err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	return buf.Bytes(), nil
}

// Clone returns an independent copy of the document produced by a serialize/parse round trip.
func (d *Document) Clone() (*Document, error) {
	text, err := d.Serialize()
	if err != nil {
		return nil, err
	}
	return Parse(text)
}

// ID returns the top-level id, or "" when missing or not a scalar.
func (d *Document) ID() string {
	return scalarValue(lookup(d.body(), KeyID))
}

// Namespace returns the top-level namespace, falling back to the legacy
// defaultNamespace alias when namespace is missing or empty.
func (d *Document) Namespace() string {
	if ns := scalarValue(lookup(d.body(), KeyNamespace)); ns != "" {
		return ns
	}
	return scalarValue(lookup(d.body(), KeyLegacyNamespace))
}

// Model decodes the document into its typed view.
// Decoding fails for documents whose field shapes have not been validated.
func (d *Document) Model() (*Workflow, error) {
	var wf Workflow
	if err := d.root.Decode(&wf); err != nil {
		return nil, fmt.Errorf("failed to decode workflow: %w", err)
	}
	return &wf, nil
}

// body returns the root mapping node.
func (d *Document) body() *yaml.Node {
	return contentOf(d.root)
}

// rebuild serializes the (already modified) tree and parses it into a new Document.
func (d *Document) rebuild() (*Document, error) {
	text, err := d.Serialize()
	if err != nil {
		return nil, err
	}
	return Parse(text)
}

// contentOf unwraps document and alias nodes.
func contentOf(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		case yaml.AliasNode:
			n = n.Alias
		default:
			return n
		}
	}
	return nil
}

// lookup returns the value node for key in a mapping, or nil.
func lookup(m *yaml.Node, key string) *yaml.Node {
	_, v := lookupPair(m, key)
	return v
}

// lookupPair returns the index of the key node and the value node for key in a mapping.
func lookupPair(m *yaml.Node, key string) (int, *yaml.Node) {
	m = contentOf(m)
	if m == nil || m.Kind != yaml.MappingNode {
		return -1, nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i, m.Content[i+1]
		}
	}
	return -1, nil
}

// isNull reports whether n is absent or an explicit YAML null.
func isNull(n *yaml.Node) bool {
	n = contentOf(n)
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

// scalarValue returns the trimmed value of a scalar node, or "" for anything else.
func scalarValue(n *yaml.Node) string {
	n = contentOf(n)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return strings.TrimSpace(n.Value)
}

// stringNode builds a plain string scalar.
func stringNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// intNode builds an integer scalar.
func intNode(value int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(value)}
}

// setValue replaces the value for key, appending the pair when the key is missing.
func setValue(m *yaml.Node, key string, value *yaml.Node) {
	m = contentOf(m)
	if i, _ := lookupPair(m, key); i >= 0 {
		m.Content[i+1] = value
		return
	}
	m.Content = append(m.Content, stringNode(key), value)
}

// prependValue inserts key at the start of a mapping, replacing any existing pair.
func prependValue(m *yaml.Node, key string, value *yaml.Node) {
	m = contentOf(m)
	if i, _ := lookupPair(m, key); i >= 0 {
		m.Content[i+1] = value
		return
	}
	m.Content = append([]*yaml.Node{stringNode(key), value}, m.Content...)
}

// removeKey deletes key and its value from a mapping.
func removeKey(m *yaml.Node, key string) {
	m = contentOf(m)
	if i, _ := lookupPair(m, key); i >= 0 {
		m.Content = append(m.Content[:i], m.Content[i+2:]...)
	}
}

// insertAfter sets key, placing a new pair directly after afterKey when that key exists.
func insertAfter(m *yaml.Node, afterKey, key string, value *yaml.Node) {
	m = contentOf(m)
	if i, _ := lookupPair(m, key); i >= 0 {
		m.Content[i+1] = value
		return
	}
	j, _ := lookupPair(m, afterKey)
	if j < 0 {
		m.Content = append(m.Content, stringNode(key), value)
		return
	}
	pos := j + 2
	content := make([]*yaml.Node, 0, len(m.Content)+2)
	content = append(content, m.Content[:pos]...)
	content = append(content, stringNode(key), value)
	m.Content = append(content, m.Content[pos:]...)
}

// adoptLegacyNamespace moves a non-empty defaultNamespace value to namespace.
// The alias key is renamed in place when namespace is missing, so the document
// keeps its key order; otherwise the empty namespace takes the value and the
// alias is dropped. It reports the adopted value.
func adoptLegacyNamespace(m *yaml.Node) (string, bool) {
	m = contentOf(m)
	j, alias := lookupPair(m, KeyLegacyNamespace)
	legacy := scalarValue(alias)
	if j < 0 {
		return "", false
	}
	if legacy == "" || scalarValue(lookup(m, KeyNamespace)) != "" {
		removeKey(m, KeyLegacyNamespace)
		return "", false
	}

	if i, _ := lookupPair(m, KeyNamespace); i < 0 {
		m.Content[j].Value = KeyNamespace
		return legacy, true
	}
	setValue(m, KeyNamespace, stringNode(legacy))
	removeKey(m, KeyLegacyNamespace)
	return legacy, true
}

// setScalar updates the scalar for key in place, keeping its comments and quoting,
// or hands a new node to place when the key is missing or holds a non-scalar.
func setScalar(m *yaml.Node, key, value string, place func(m *yaml.Node, key string, value *yaml.Node)) {
	m = contentOf(m)
	_, existing := lookupPair(m, key)
	if existing != nil && existing.Kind == yaml.ScalarNode {
		existing.Value = value
		existing.Tag = "!!str"
		if existing.Style != yaml.DoubleQuotedStyle && existing.Style != yaml.SingleQuotedStyle {
			existing.Style = 0
		}
		return
	}
	place(m, key, stringNode(value))
}
