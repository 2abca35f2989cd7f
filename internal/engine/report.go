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

package engine

import (
	"github.com/tombee/flowgate/internal/publish"
	"github.com/tombee/flowgate/pkg/flow"
)

// Stage names a pipeline step.
type Stage string

const (
	StageLoad    Stage = "load"
	StageCheck   Stage = "check"
	StageResolve Stage = "resolve"
	StagePublish Stage = "publish"
	StageDone    Stage = "done"
)

// Origin records where the document text came from.
type Origin string

const (
	OriginDirect       Origin = "direct"
	OriginConversation Origin = "conversation"
)

// Report is the structured result of a pipeline run.
type Report struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Origin         Origin `json:"origin,omitempty"`

	// Stage is the last stage reached; StageDone when the pipeline completed.
	Stage Stage `json:"stage"`

	Validation *flow.ValidationResult `json:"validation,omitempty"`

	ResolvedID string        `json:"resolved_id,omitempty"`
	IDSource   flow.IDSource `json:"id_source,omitempty"`

	Publication *publish.Publication `json:"publication,omitempty"`

	// Error describes why the pipeline stopped early.
	Error string `json:"error,omitempty"`

	Err error `json:"-"`
}

// Published reports whether the workflow was stored.
func (r *Report) Published() bool {
	return r != nil && r.Publication.Succeeded()
}

// FinalAttempt returns the last publication attempt, or the zero Attempt.
func (r *Report) FinalAttempt() publish.Attempt {
	if r == nil {
		return publish.Attempt{}
	}
	return r.Publication.Final()
}

func (r *Report) fail(stage Stage, err error) (*Report, error) {
	r.Stage = stage
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
	return r, err
}
