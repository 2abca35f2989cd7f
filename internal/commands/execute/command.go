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

package execute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/commands/completion"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/internal/engine"
	"github.com/tombee/flowgate/internal/publish"
)

type options struct {
	inputs  []string
	wait    bool
	timeout time.Duration
	server  string
	uiURL   string
}

// NewCommand creates the execute command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "execute <namespace> <id>",
		Short: "Trigger a run of a published workflow",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Execute starts a run of a workflow stored on the remote server and prints
a link to the execution. With --wait the command polls the execution until it
reaches a terminal state and exits non-zero unless it succeeded.`,
		Example: `  # Start a run
  flowgate execute company.team nightly-report

  # Pass inputs and wait for the result
  flowgate execute company.team nightly-report --input date=2025-01-01 --wait`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completion.CompleteFlowArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "Execution input as key=value (repeatable)")
	cmd.Flags().BoolVarP(&opts.wait, "wait", "w", false, "Wait for the execution to finish")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Give up waiting after this long (0 = no limit)")
	cmd.Flags().StringVar(&opts.server, "server", "", "Override the remote API base URL")
	cmd.Flags().StringVar(&opts.uiURL, "ui-url", "", "Override the UI base URL used for links")

	return cmd
}

func runExecute(cmd *cobra.Command, namespace, id string, opts options) error {
	inputs, err := ParseInputs(opts.inputs)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitFailed, Cause: err}
	}

	ctx := cmd.Context()
	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	report, err := rt.Engine.Execute(ctx, engine.ExecuteRequest{
		Namespace: namespace,
		FlowID:    id,
		Inputs:    inputs,
		Wait:      opts.wait,
		ServerURL: opts.server,
		UIBaseURL: opts.uiURL,
	})
	timedOut := err != nil && report != nil && errors.Is(err, context.DeadlineExceeded)
	if err != nil && !timedOut {
		return err
	}

	if shared.GetJSON() {
		type executeResponse struct {
			shared.JSONResponse
			Execution *publish.ExecutionReport `json:"execution"`
		}
		success := !opts.wait || report.Succeeded
		if emitErr := shared.EmitJSON(cmd.OutOrStdout(), executeResponse{
			JSONResponse: shared.NewJSONResponse("execute", success),
			Execution:    report,
		}); emitErr != nil {
			return emitErr
		}
	} else {
		printReport(cmd, report, opts.wait)
	}

	switch {
	case timedOut:
		return &shared.ExitError{Code: shared.ExitFailed, Message: "timed out waiting for execution", Cause: err}
	case opts.wait && !report.Succeeded:
		if shared.GetJSON() {
			return shared.Silent(shared.ExitFailed)
		}
		return &shared.ExitError{Code: shared.ExitFailed, Message: fmt.Sprintf("execution %s finished in state %s", report.ExecutionID, report.State)}
	}
	return nil
}

func printReport(cmd *cobra.Command, report *publish.ExecutionReport, wait bool) {
	w := cmd.OutOrStdout()
	line := fmt.Sprintf("execution %s of %s/%s: %s", report.ExecutionID, report.Namespace, report.FlowID, report.State)
	switch {
	case !wait:
		fmt.Fprintln(w, shared.RenderOK(line))
	case report.Succeeded:
		fmt.Fprintln(w, shared.RenderOK(line))
	case report.Terminal:
		fmt.Fprintln(w, shared.RenderError(line))
	default:
		fmt.Fprintln(w, shared.RenderWarn(line))
	}
	if report.ExternalURL != "" {
		fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("url:"), report.ExternalURL)
	}
}

// ParseInputs converts key=value pairs into an input map.
func ParseInputs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q: expected key=value", pair)
		}
		inputs[key] = value
	}
	return inputs, nil
}
