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

package publish

import (
	"errors"

	flowerrors "github.com/tombee/flowgate/pkg/errors"
)

// Outcome is the result of one submission to the remote service.
type Outcome string

const (
	// OutcomeCreated means the remote accepted and stored the workflow.
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated means an existing workflow was replaced.
	OutcomeUpdated Outcome = "updated"
	// OutcomeConflict means the identifier was already taken.
	OutcomeConflict Outcome = "conflict"
	// OutcomeRejected means the remote refused the workflow for another reason.
	OutcomeRejected Outcome = "rejected"
	// OutcomeTransportError means the remote could not be reached.
	OutcomeTransportError Outcome = "transport_error"
)

// Succeeded reports whether the outcome stored the workflow.
func (o Outcome) Succeeded() bool {
	return o == OutcomeCreated || o == OutcomeUpdated
}

// Attempt records one submission.
type Attempt struct {
	// RequestedID is the identifier carried by the submitted document.
	RequestedID string  `json:"requested_id"`
	Namespace   string  `json:"namespace"`
	Outcome     Outcome `json:"outcome"`

	// ResultingID is the identifier the remote stored, set on success.
	ResultingID string `json:"resulting_id,omitempty"`

	// ExternalURL links to the stored workflow in the web UI, when configured.
	ExternalURL string `json:"external_url,omitempty"`

	StatusCode int      `json:"status_code,omitempty"`
	Message    string   `json:"message,omitempty"`
	Details    []string `json:"details,omitempty"`

	// Err is the typed error behind a failed outcome.
	Err error `json:"-"`
}

// Publication is the ordered record of one publish request: one attempt, or
// two when the first hit an identifier conflict.
type Publication struct {
	Attempts []Attempt `json:"attempts"`

	// Source is the text of the last submitted document.
	Source string `json:"-"`
}

// Final returns the last attempt.
func (p *Publication) Final() Attempt {
	if p == nil || len(p.Attempts) == 0 {
		return Attempt{}
	}
	return p.Attempts[len(p.Attempts)-1]
}

// Succeeded reports whether the final attempt stored the workflow.
func (p *Publication) Succeeded() bool {
	return p.Final().Outcome.Succeeded()
}

// Retried reports whether a conflict caused a second attempt.
func (p *Publication) Retried() bool {
	return p != nil && len(p.Attempts) > 1
}

// Err returns the typed error of a failed final attempt, or nil.
func (p *Publication) Err() error {
	return p.Final().Err
}

// outcomeFor maps a remote error to an attempt outcome and fills the attempt's
// status, message and details.
func outcomeFor(err error, a *Attempt) Outcome {
	a.Err = err

	var conflict *flowerrors.ConflictError
	var rejection *flowerrors.RemoteRejection
	var notFound *flowerrors.NotFoundError

	switch {
	case errors.As(err, &conflict):
		a.StatusCode, a.Message = conflict.StatusCode, conflict.Message
		return OutcomeConflict
	case errors.As(err, &rejection):
		a.StatusCode, a.Message, a.Details = rejection.StatusCode, rejection.Message, rejection.Details
		return OutcomeRejected
	case errors.As(err, &notFound):
		a.StatusCode, a.Message = 404, notFound.Error()
		return OutcomeRejected
	default:
		a.Message = err.Error()
		return OutcomeTransportError
	}
}
