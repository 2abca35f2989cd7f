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

package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/bridge"
	"github.com/tombee/flowgate/internal/commands/completion"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/internal/commands/validate"
	"github.com/tombee/flowgate/internal/log"
	fswatch "github.com/tombee/flowgate/internal/watch"
	"github.com/tombee/flowgate/pkg/flow"
)

type options struct {
	namespace    string
	conversation string
	include      []string
	exclude      []string
	debounce     time.Duration
	noInitial    bool
}

// NewCommand creates the watch command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-validate workflow documents when they change",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Watch validates every workflow document under a directory, then
re-validates each document whenever it is written. Results are printed as
they happen; nothing is written back to disk or sent to the server.

With --conversation, each document that is valid after repair becomes the
conversation's current document, ready for 'flowgate publish --conversation'.`,
		Example: `  # Watch the current directory
  flowgate watch

  # Watch flows/ and keep the latest valid document in a conversation
  flowgate watch flows --conversation 7f1c...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd.OutOrStdout(), dir, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.namespace, "namespace", "n", flow.DefaultNamespace, "Namespace assigned to documents without one")
	cmd.Flags().StringVarP(&opts.conversation, "conversation", "c", "", "Store each valid document in this conversation")
	cmd.Flags().StringSliceVar(&opts.include, "include", fswatch.DefaultIncludePatterns(), "Glob patterns of documents to watch")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", fswatch.DefaultExcludePatterns(), "Glob patterns to ignore")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", fswatch.DefaultDebounce, "Quiet period before a changed file is checked")
	cmd.Flags().BoolVar(&opts.noInitial, "no-initial", false, "Skip checking existing documents at startup")

	_ = cmd.RegisterFlagCompletionFunc("namespace", completion.CompleteNamespaces)

	return cmd
}

// run watches dir until ctx is cancelled, writing one result block per check to out.
func run(ctx context.Context, out io.Writer, dir string, opts options) error {
	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	var conv *bridge.Conversation
	if opts.conversation != "" {
		conv = rt.Conversation(opts.conversation)
	}

	w, err := fswatch.New(fswatch.Config{
		Root:     dir,
		Include:  opts.include,
		Exclude:  opts.exclude,
		Debounce: opts.debounce,
		Logger:   rt.Logger,
	})
	if err != nil {
		return &shared.ExitError{Code: shared.ExitFailed, Message: "failed to start watcher", Cause: err}
	}

	checkOpts := flow.CheckOptions{
		Repair: flow.RepairOptions{DefaultNamespace: opts.namespace},
	}
	handle := func(ctx context.Context, path string) {
		res, fixed := validate.CheckFile(path, checkOpts)
		validate.PrintResults(out, []validate.FileResult{res})
		if conv == nil || !res.Valid {
			return
		}
		text := fixed
		if text == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				rt.Logger.Warn("failed to re-read document", log.Error(err))
				return
			}
			text = data
		}
		if conv.SetDocument(ctx, string(text)) {
			fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("stored in conversation"), conv.ID())
		}
	}

	if !opts.noInitial {
		files, err := w.Files()
		if err != nil {
			w.Close()
			return &shared.ExitError{Code: shared.ExitFailed, Message: "failed to list documents", Cause: err}
		}
		for _, path := range files {
			handle(ctx, path)
		}
	}

	if !shared.GetQuiet() {
		fmt.Fprintln(out, shared.Muted.Render("watching "+w.Root()+" (ctrl-c to stop)"))
	}
	return w.Run(ctx, handle)
}
