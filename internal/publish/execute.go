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
	"context"
	"net/http"
	"time"

	"github.com/tombee/flowgate/internal/log"
	"github.com/tombee/flowgate/internal/remote"
	"github.com/tombee/flowgate/internal/tracing"
	flowerrors "github.com/tombee/flowgate/pkg/errors"
)

// ExecuteOptions configures Execute.
type ExecuteOptions struct {
	// Inputs are passed to the execution as form fields.
	Inputs map[string]string

	// Wait polls until the execution reaches a terminal state or ctx ends.
	Wait bool
}

// ExecutionReport describes a triggered execution.
type ExecutionReport struct {
	ExecutionID string `json:"execution_id"`
	Namespace   string `json:"namespace"`
	FlowID      string `json:"flow_id"`
	State       string `json:"state"`
	Terminal    bool   `json:"terminal"`
	Succeeded   bool   `json:"succeeded"`
	ExternalURL string `json:"external_url,omitempty"`
}

// Execute triggers a run of a stored workflow and, when opts.Wait is set,
// polls its state until it finishes. Errors are the typed remote errors; a
// cancelled wait returns the last observed state together with ctx.Err().
func (p *Publisher) Execute(ctx context.Context, namespace, id string, opts ExecuteOptions) (*ExecutionReport, error) {
	ctx, span := tracing.StartExecution(ctx, p.tracer, namespace, id)
	defer span.End()

	exec, err := p.api.TriggerExecution(ctx, namespace, id, opts.Inputs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if exec == nil || exec.ID == "" {
		err := &flowerrors.RemoteRejection{StatusCode: http.StatusOK, Message: "trigger response carried no execution id"}
		span.RecordError(err)
		return nil, err
	}

	logger := log.WithFlow(p.logger, namespace, id).With("execution_id", exec.ID)
	logger.InfoContext(ctx, "execution triggered")

	report := p.report(namespace, id, exec)
	if !opts.Wait || report.Terminal {
		return report, nil
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case <-ticker.C:
		}

		current, err := p.api.GetExecution(ctx, exec.ID)
		if err != nil {
			span.RecordError(err)
			return report, err
		}
		report = p.report(namespace, id, current)
		if report.Terminal {
			executionsTotal.WithLabelValues(report.State).Inc()
			span.SetAttributes(map[string]any{"execution.state": report.State})
			logger.InfoContext(ctx, "execution finished", "state", report.State)
			return report, nil
		}
		logger.DebugContext(ctx, "execution running", "state", report.State)
	}
}

func (p *Publisher) report(namespace, id string, exec *remote.Execution) *ExecutionReport {
	r := &ExecutionReport{
		ExecutionID: exec.ID,
		Namespace:   namespace,
		FlowID:      id,
		State:       exec.Status(),
		Terminal:    exec.IsTerminal(),
		Succeeded:   exec.Succeeded(),
	}
	if exec.Namespace != "" {
		r.Namespace = exec.Namespace
	}
	if exec.FlowID != "" {
		r.FlowID = exec.FlowID
	}
	r.ExternalURL = p.links.ExecutionURL(r.Namespace, r.FlowID, r.ExecutionID, "")
	return r
}
