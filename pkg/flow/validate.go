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

	"gopkg.in/yaml.v3"
)

// Validate checks a document against the minimal shape the remote engine requires.
// It never short-circuits: every violation is returned, in document order.
// An empty result means the document is structurally valid.
func Validate(doc *Document) []string {
	var diags []string
	body := doc.body()

	diags = append(diags, requireScalar(body, KeyID)...)
	if _, ns := lookupPair(body, KeyNamespace); ns != nil || lookup(body, KeyLegacyNamespace) == nil {
		diags = append(diags, requireScalar(body, KeyNamespace)...)
	} else {
		diags = append(diags, requireScalar(body, KeyLegacyNamespace)...)
	}

	tasks := lookup(body, KeyTasks)
	switch {
	case isNull(tasks):
		diags = append(diags, "tasks is required")
	case contentOf(tasks).Kind != yaml.SequenceNode:
		diags = append(diags, "tasks must be a sequence")
	case len(contentOf(tasks).Content) == 0:
		diags = append(diags, "tasks: at least one task required")
	default:
		diags = append(diags, validateTasks(contentOf(tasks))...)
	}

	return diags
}

// requireScalar reports a missing or empty scalar field.
func requireScalar(m *yaml.Node, key string) []string {
	v := lookup(m, key)
	switch {
	case isNull(v) && v == nil:
		return []string{key + " is required"}
	case isNull(v):
		return []string{key + " must not be empty"}
	case contentOf(v).Kind != yaml.ScalarNode:
		return []string{key + " must be a string"}
	case scalarValue(v) == "":
		return []string{key + " must not be empty"}
	}
	return nil
}

func validateTasks(seq *yaml.Node) []string {
	var diags []string
	seen := make(map[string]bool)

	for i, item := range seq.Content {
		task := contentOf(item)
		prefix := fmt.Sprintf("tasks[%d]", i)

		if task == nil || task.Kind != yaml.MappingNode {
			diags = append(diags, prefix+" must be a mapping")
			continue
		}

		for _, d := range requireScalar(task, KeyID) {
			diags = append(diags, prefix+"."+d)
		}
		for _, d := range requireScalar(task, KeyTaskType) {
			diags = append(diags, prefix+"."+d)
		}

		if id := scalarValue(lookup(task, KeyID)); id != "" {
			if seen[id] {
				diags = append(diags, fmt.Sprintf("%s.id %q is duplicated", prefix, id))
			}
			seen[id] = true
		}
	}

	return diags
}
