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

package contextcmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/pkg/flow"
)

// NewCommand creates the context command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage the shared conversation context",
		Annotations: map[string]string{
			"group": "context",
		},
		Long: `Context reads and writes the current document of a conversation in the
configured context store. Agents and the publish command share this document:
a document passed directly always wins over the stored one.

The memory backend lives only as long as the process; configure
bridge.backend: sqlite to keep context between invocations.`,
	}

	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newClearCommand())
	return cmd
}

func newSetCommand() *cobra.Command {
	var conversation string

	cmd := &cobra.Command{
		Use:   "set <file|->",
		Short: "Store a document as the conversation's current document",
		Long: `Set stores the document as the current document of --conversation.
When --conversation is omitted a new conversation id is generated and printed.
The document is parsed first; text that is not YAML is refused.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text, err := shared.ReadDocument(cmd, args[0])
			if err != nil {
				return &shared.ExitError{Code: shared.ExitFailed, Cause: err}
			}
			if _, err := flow.Parse(text); err != nil {
				return shared.NewInvalidWorkflowError("", err)
			}

			rt, err := shared.NewRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			conv := rt.Conversation(conversation)
			if !conv.SetDocument(ctx, string(text)) {
				return &shared.ExitError{Code: shared.ExitFailed, Message: "failed to store document"}
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), contextResponse{
					JSONResponse:   shared.NewJSONResponse("context set", true),
					ConversationID: conv.ID(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), conv.ID())
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation id (default: new conversation)")
	return cmd
}

func newGetCommand() *cobra.Command {
	var conversation string

	cmd := &cobra.Command{
		Use:           "get",
		Short:         "Print the conversation's current document",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := shared.NewRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			doc, ok, err := rt.Conversation(conversation).CurrentDocument(ctx)
			if err != nil {
				return &shared.ExitError{Code: shared.ExitFailed, Message: "failed to read context", Cause: err}
			}
			if !ok {
				return &shared.ExitError{Code: shared.ExitFailed, Message: fmt.Sprintf("conversation %s has no current document", conversation)}
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), contextResponse{
					JSONResponse:   shared.NewJSONResponse("context get", true),
					ConversationID: conversation,
					Document:       doc,
				})
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
			return err
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation id")
	_ = cmd.MarkFlagRequired("conversation")
	return cmd
}

func newClearCommand() *cobra.Command {
	var conversation string

	cmd := &cobra.Command{
		Use:           "clear",
		Short:         "Remove every value stored for a conversation",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := shared.NewRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if err := rt.Conversation(conversation).Clear(ctx); err != nil {
				return &shared.ExitError{Code: shared.ExitFailed, Message: "failed to clear context", Cause: err}
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), contextResponse{
					JSONResponse:   shared.NewJSONResponse("context clear", true),
					ConversationID: conversation,
				})
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("cleared "+conversation))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation id")
	_ = cmd.MarkFlagRequired("conversation")
	return cmd
}

type contextResponse struct {
	shared.JSONResponse
	ConversationID string `json:"conversation_id"`
	Document       string `json:"document,omitempty"`
}
