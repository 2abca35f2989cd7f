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
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/commands/completion"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/internal/engine"
	publishpkg "github.com/tombee/flowgate/internal/publish"
)

type options struct {
	id           string
	purpose      string
	namespace    string
	server       string
	uiURL        string
	conversation string
	update       bool
	keepID       bool
	noRepair     bool
}

// NewCommand creates the publish command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "publish [file|-]",
		Short: "Validate, repair and publish a workflow",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Publish runs the full pipeline on a workflow document: parse, validate,
repair, resolve a unique identifier and create the workflow on the remote
server. When the identifier is already taken the document is given one fresh
identifier and submitted again.

Without a file argument the current document of --conversation is used.
A successful publish stores the submitted document back into the conversation.

Identifier precedence:
  --id        used verbatim
  --purpose   slugified with a unique suffix
  otherwise   the document's id, slugified with a unique suffix

See also: flowgate validate, flowgate execute, flowgate context`,
		Example: `  # Publish a document
  flowgate publish flow.yaml

  # Publish under an exact identifier
  flowgate publish flow.yaml --id nightly-report

  # Publish the conversation's current document
  flowgate publish --conversation 7f1c...

  # Replace an existing workflow
  flowgate publish flow.yaml --update`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowFiles,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Publish under this exact identifier")
	cmd.Flags().StringVar(&opts.purpose, "purpose", "", "Short description used to derive the identifier")
	cmd.Flags().StringVarP(&opts.namespace, "namespace", "n", "", "Override the document namespace")
	cmd.Flags().StringVar(&opts.server, "server", "", "Override the remote API base URL")
	cmd.Flags().StringVar(&opts.uiURL, "ui-url", "", "Override the UI base URL used for links")
	cmd.Flags().StringVarP(&opts.conversation, "conversation", "c", "", "Conversation whose context is read and updated")
	cmd.Flags().BoolVar(&opts.update, "update", false, "Replace an existing workflow instead of creating one")
	cmd.Flags().BoolVar(&opts.keepID, "keep-id", false, "Publish under the document's own identifier")
	cmd.Flags().BoolVar(&opts.noRepair, "no-repair", false, "Fail on diagnostics instead of repairing them")
	cmd.MarkFlagsMutuallyExclusive("id", "keep-id")
	cmd.MarkFlagsMutuallyExclusive("purpose", "keep-id")

	_ = cmd.RegisterFlagCompletionFunc("namespace", completion.CompleteNamespaces)

	return cmd
}

func runPublish(cmd *cobra.Command, args []string, opts options) error {
	ctx := cmd.Context()

	if len(args) == 0 && opts.conversation == "" {
		return shared.NewInvalidWorkflowError("no document: pass a file or --conversation", nil)
	}

	var text []byte
	if len(args) == 1 {
		data, err := shared.ReadDocument(cmd, args[0])
		if err != nil {
			return &shared.ExitError{Code: shared.ExitFailed, Message: "", Cause: err}
		}
		text = data
	}

	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	req := engine.Request{
		Text:        text,
		ExplicitID:  opts.id,
		PurposeHint: opts.purpose,
		KeepID:      opts.keepID,
		Namespace:   opts.namespace,
		ServerURL:   opts.server,
		UIBaseURL:   opts.uiURL,
		Update:      opts.update,
		SkipRepair:  opts.noRepair,
	}
	if opts.conversation != "" {
		req.Conversation = rt.Conversation(opts.conversation)
	}

	report, err := rt.Engine.Publish(ctx, req)

	if shared.GetJSON() {
		type publishResponse struct {
			shared.JSONResponse
			Report *engine.Report `json:"report"`
		}
		if emitErr := shared.EmitJSON(cmd.OutOrStdout(), publishResponse{
			JSONResponse: shared.NewJSONResponse("publish", report.Published()),
			Report:       report,
		}); emitErr != nil {
			return emitErr
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}

	switch {
	case err != nil && (report.Stage == engine.StageCheck || report.Stage == engine.StageResolve):
		if shared.GetJSON() {
			return shared.Silent(shared.ExitInvalidWorkflow)
		}
		return shared.NewInvalidWorkflowError("document is not publishable", err)
	case err != nil:
		if shared.GetJSON() {
			return shared.Silent(shared.ExitCode(err))
		}
		return err
	case !report.Published():
		if shared.GetJSON() {
			return shared.Silent(shared.ExitPublishFailed)
		}
		return shared.NewPublishError("publish failed", report.Publication.Err())
	}
	return nil
}

func printReport(w io.Writer, report *engine.Report) {
	if v := report.Validation; v != nil {
		for _, fix := range v.Fixes {
			fmt.Fprintln(w, shared.RenderFix(fix))
		}
		if !v.Valid {
			for _, diag := range v.Remaining {
				fmt.Fprintln(w, shared.RenderError(diag))
			}
		}
	}

	pub := report.Publication
	if pub == nil {
		return
	}
	for i, a := range pub.Attempts {
		fmt.Fprintf(w, "%s %s %s\n",
			shared.RenderLabel(fmt.Sprintf("attempt %d:", i+1)),
			shared.RenderFlowRef(a.Namespace, a.RequestedID), describe(a))
	}

	final := pub.Final()
	if final.Outcome.Succeeded() {
		fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("%s %s/%s", final.Outcome, final.Namespace, final.ResultingID)))
		if final.ExternalURL != "" {
			fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("url:"), final.ExternalURL)
		}
		return
	}
	fmt.Fprintln(w, shared.RenderError(fmt.Sprintf("%s %s/%s", final.Outcome, final.Namespace, final.RequestedID)))
	for _, d := range final.Details {
		fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("detail:"), d)
	}
}

func describe(a publishpkg.Attempt) string {
	s := shared.RenderOutcome(a.Outcome)
	if a.StatusCode != 0 {
		s += fmt.Sprintf(" (%d)", a.StatusCode)
	}
	if a.Message != "" && !a.Outcome.Succeeded() {
		s += ": " + a.Message
	}
	return s
}
