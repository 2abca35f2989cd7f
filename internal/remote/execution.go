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

package remote

import "strings"

// Execution states reported by the remote service.
const (
	StateCreated   = "CREATED"
	StateRunning   = "RUNNING"
	StatePaused    = "PAUSED"
	StateSuccess   = "SUCCESS"
	StateWarning   = "WARNING"
	StateFailed    = "FAILED"
	StateKilled    = "KILLED"
	StateCancelled = "CANCELLED"
)

// Execution is one run of a stored workflow.
type Execution struct {
	ID        string         `json:"id"`
	Namespace string         `json:"namespace"`
	FlowID    string         `json:"flowId"`
	State     ExecutionState `json:"state"`
}

// ExecutionState holds the current state of an execution.
type ExecutionState struct {
	Current string `json:"current"`
}

// Status returns the upper-cased current state, or CREATED when unknown.
func (e *Execution) Status() string {
	if e == nil || e.State.Current == "" {
		return StateCreated
	}
	return strings.ToUpper(e.State.Current)
}

// IsTerminal reports whether the execution has finished.
func (e *Execution) IsTerminal() bool {
	switch e.Status() {
	case StateSuccess, StateWarning, StateFailed, StateKilled, StateCancelled:
		return true
	default:
		return false
	}
}

// Succeeded reports whether the execution finished without failure.
func (e *Execution) Succeeded() bool {
	s := e.Status()
	return s == StateSuccess || s == StateWarning
}
