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

// Workflow is the typed view of a structurally valid document.
// Known fields are typed; every other top-level key lands in Extra and is
// written back unchanged.
type Workflow struct {
	// ID is the flow identifier, unique within its namespace
	ID string `yaml:"id" json:"id"`

	// Namespace groups flows on the remote engine
	Namespace string `yaml:"namespace" json:"namespace"`

	// Description is optional human-readable context
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Tasks are the ordered steps of the flow
	Tasks []TaskSpec `yaml:"tasks" json:"tasks"`

	// Inputs, Variables, Triggers and Labels are engine-defined and passed through untouched.
	Inputs    any `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Variables any `yaml:"variables,omitempty" json:"variables,omitempty"`
	Triggers  any `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	Labels    any `yaml:"labels,omitempty" json:"labels,omitempty"`

	// Extra holds unrecognized top-level keys.
	Extra map[string]any `yaml:",inline" json:"extra,omitempty"`
}

// TaskSpec is one step of a workflow.
type TaskSpec struct {
	// ID is unique within the document
	ID string `yaml:"id" json:"id"`

	// Type names the remote engine's task implementation
	Type string `yaml:"type" json:"type"`

	// Retry is nil when the task has no retry policy
	Retry *RetryPolicy `yaml:"retry,omitempty" json:"retry,omitempty"`

	// Env maps environment variable names to values
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Extra holds engine-specific task properties.
	Extra map[string]any `yaml:",inline" json:"extra,omitempty"`
}

// RetryPolicy is the normalized retry object.
type RetryPolicy struct {
	Type       string `yaml:"type" json:"type"`
	MaxAttempt int    `yaml:"maxAttempt" json:"maxAttempt"`

	// Extra keeps policy properties such as interval or maxDuration.
	Extra map[string]any `yaml:",inline" json:"extra,omitempty"`
}
