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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	flowerrors "github.com/tombee/flowgate/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultNamespace is assigned by the repair engine when the caller supplies none.
const DefaultNamespace = "company.team"

// envFallbackKey wraps an env string that is not a JSON object.
const envFallbackKey = "VALUE"

// RepairOptions configures a repair pass.
type RepairOptions struct {
	// DefaultNamespace is assigned to documents without a namespace.
	// Defaults to DefaultNamespace when empty.
	DefaultNamespace string
}

// RepairOutcome is the result of a repair pass.
type RepairOutcome struct {
	// Document is the repaired copy, or the input document when nothing changed.
	Document *Document

	// Modified reports whether any rule applied.
	Modified bool

	// Fixes describes each applied fix in the order it was made.
	Fixes []string
}

// repairRule mutates the root mapping of a working copy and returns the fixes it made.
type repairRule func(body *yaml.Node, opts RepairOptions) []string

// repairRules run in this order; each observes the output of the previous ones.
var repairRules = []repairRule{
	repairNamespace,
	repairMissingTasks,
	repairTasksShape,
	repairTaskIDs,
	repairRetry,
	repairEnv,
}

// Repair applies the fixed rule set to a copy of doc. The input is never modified.
// When any rule applies, the copy is re-serialized and re-parsed; if that fails the
// repair is discarded and *errors.RepairFailure is returned.
// Repair is idempotent: repairing a repaired document makes no further fixes.
func Repair(doc *Document, opts RepairOptions) (*RepairOutcome, error) {
	if opts.DefaultNamespace == "" {
		opts.DefaultNamespace = DefaultNamespace
	}

	work, err := doc.Clone()
	if err != nil {
		return nil, &flowerrors.RepairFailure{Cause: err}
	}

	var fixes []string
	body := work.body()
	for _, rule := range repairRules {
		fixes = append(fixes, rule(body, opts)...)
	}

	if len(fixes) == 0 {
		return &RepairOutcome{Document: doc}, nil
	}

	repaired, err := work.rebuild()
	if err != nil {
		return nil, &flowerrors.RepairFailure{Fixes: fixes, Cause: err}
	}

	return &RepairOutcome{Document: repaired, Modified: true, Fixes: fixes}, nil
}

func repairNamespace(body *yaml.Node, opts RepairOptions) []string {
	if scalarValue(lookup(body, KeyNamespace)) != "" {
		return nil
	}

	if legacy, ok := adoptLegacyNamespace(body); ok {
		return []string{fmt.Sprintf("namespace: adopted legacy %s %q", KeyLegacyNamespace, legacy)}
	}

	if _, ns := lookupPair(body, KeyNamespace); ns != nil && contentOf(ns).Kind != yaml.ScalarNode {
		return nil
	}

	insertAfter(body, KeyID, KeyNamespace, stringNode(opts.DefaultNamespace))
	return []string{fmt.Sprintf("namespace: set to default %q", opts.DefaultNamespace)}
}

func repairMissingTasks(body *yaml.Node, _ RepairOptions) []string {
	if !isNull(lookup(body, KeyTasks)) {
		return nil
	}
	setValue(body, KeyTasks, &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle})
	return []string{"tasks: initialized to an empty sequence"}
}

func repairTasksShape(body *yaml.Node, _ RepairOptions) []string {
	tasks := contentOf(lookup(body, KeyTasks))
	if tasks == nil || tasks.Kind == yaml.SequenceNode {
		return nil
	}

	item := lookup(body, KeyTasks)
	setValue(body, KeyTasks, &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{item}})

	shape := "scalar"
	if tasks.Kind == yaml.MappingNode {
		shape = "mapping"
	}
	return []string{fmt.Sprintf("tasks: wrapped single %s into a sequence", shape)}
}

func repairTaskIDs(body *yaml.Node, _ RepairOptions) []string {
	var fixes []string
	forEachTask(body, func(i int, task *yaml.Node) {
		if scalarValue(lookup(task, KeyID)) != "" {
			return
		}
		if id := lookup(task, KeyID); id != nil && !isNull(id) && contentOf(id).Kind != yaml.ScalarNode {
			return
		}
		id := fmt.Sprintf("task-%d", i+1)
		prependValue(task, KeyID, stringNode(id))
		fixes = append(fixes, fmt.Sprintf("tasks[%d].id: generated %q", i, id))
	})
	return fixes
}

func repairRetry(body *yaml.Node, _ RepairOptions) []string {
	var fixes []string
	forEachTask(body, func(i int, task *yaml.Node) {
		retry := lookup(task, KeyTaskRetry)
		if isNull(retry) || contentOf(retry).Kind != yaml.ScalarNode {
			return
		}

		original := contentOf(retry).Value
		attempts, err := strconv.Atoi(strings.TrimSpace(original))
		if err != nil || attempts < 0 {
			attempts = 1
		}

		setValue(task, KeyTaskRetry, &yaml.Node{
			Kind: yaml.MappingNode,
			Tag:  "!!map",
			Content: []*yaml.Node{
				stringNode(KeyRetryType), stringNode(RetryTypeConstant),
				stringNode(KeyRetryMaxAttempt), intNode(attempts),
			},
		})
		fixes = append(fixes, fmt.Sprintf("tasks[%d].retry: rewrote %q as {type: %s, maxAttempt: %d}",
			i, original, RetryTypeConstant, attempts))
	})
	return fixes
}

func repairEnv(body *yaml.Node, _ RepairOptions) []string {
	var fixes []string
	forEachTask(body, func(i int, task *yaml.Node) {
		env := lookup(task, KeyTaskEnv)
		if isNull(env) || contentOf(env).Kind != yaml.ScalarNode {
			return
		}

		original := contentOf(env).Value
		if mapping, ok := envFromJSON(original); ok {
			setValue(task, KeyTaskEnv, mapping)
			fixes = append(fixes, fmt.Sprintf("tasks[%d].env: parsed JSON object string into a mapping", i))
			return
		}

		setValue(task, KeyTaskEnv, &yaml.Node{
			Kind:    yaml.MappingNode,
			Tag:     "!!map",
			Content: []*yaml.Node{stringNode(envFallbackKey), stringNode(original)},
		})
		fixes = append(fixes, fmt.Sprintf("tasks[%d].env: wrapped string as {%s: ...}", i, envFallbackKey))
	})
	return fixes
}

// envFromJSON converts a JSON object string into a string-valued mapping node,
// keeping the key order of the source text.
func envFromJSON(text string) (*yaml.Node, bool) {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, false
	}

	var parsed yaml.Node
	if err := yaml.Unmarshal(trimmed, &parsed); err != nil {
		return nil, false
	}
	obj := contentOf(&parsed)
	if obj == nil || obj.Kind != yaml.MappingNode {
		return nil, false
	}

	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(obj.Content); i += 2 {
		key, value := obj.Content[i], contentOf(obj.Content[i+1])
		out.Content = append(out.Content, stringNode(key.Value), stringNode(envValueString(value)))
	}
	return out, true
}

// envValueString renders a JSON value as an env string. Scalars keep their text;
// nested objects and arrays are re-encoded as compact JSON.
func envValueString(n *yaml.Node) string {
	if n == nil {
		return ""
	}
	if n.Kind == yaml.ScalarNode {
		if n.Tag == "!!null" {
			return ""
		}
		return n.Value
	}

	var v any
	if err := n.Decode(&v); err != nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// forEachTask visits every mapping task in the tasks sequence.
func forEachTask(body *yaml.Node, fn func(i int, task *yaml.Node)) {
	tasks := contentOf(lookup(body, KeyTasks))
	if tasks == nil || tasks.Kind != yaml.SequenceNode {
		return
	}
	for i, item := range tasks.Content {
		if task := contentOf(item); task != nil && task.Kind == yaml.MappingNode {
			fn(i, task)
		}
	}
}
