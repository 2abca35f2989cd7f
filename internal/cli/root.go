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

package cli

import (
	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/commands/auth"
	"github.com/tombee/flowgate/internal/commands/completion"
	configcmd "github.com/tombee/flowgate/internal/commands/config"
	"github.com/tombee/flowgate/internal/commands/contextcmd"
	"github.com/tombee/flowgate/internal/commands/diagnostics"
	"github.com/tombee/flowgate/internal/commands/execute"
	"github.com/tombee/flowgate/internal/commands/mcpserver"
	"github.com/tombee/flowgate/internal/commands/publish"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/internal/commands/validate"
	versioncmd "github.com/tombee/flowgate/internal/commands/version"
	"github.com/tombee/flowgate/internal/commands/watch"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for flowgate with every
// subcommand registered.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flowgate",
		Short: "flowgate - validate, repair and publish workflow documents",
		Long: `flowgate checks declarative workflow documents against the fields a remote
orchestration engine requires, repairs common structural defects, resolves a
unique identifier and publishes the result, retrying once with a fresh
identifier when the first one is already taken.

Run 'flowgate validate flow.yaml' to check a document without publishing it.
Run 'flowgate mcp' to expose the same operations to an agent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			shared.ApplyOutputFlags()
		},
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVar(shared.NoColorFlag(), "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/flowgate/config.yaml)")

	// Workflow commands
	cmd.AddCommand(validate.NewCommand())
	cmd.AddCommand(publish.NewCommand())
	cmd.AddCommand(execute.NewCommand())
	cmd.AddCommand(watch.NewCommand())

	// Agent integration
	cmd.AddCommand(contextcmd.NewCommand())
	cmd.AddCommand(mcpserver.NewCommand())

	// Configuration
	cmd.AddCommand(configcmd.NewConfigCommand())
	cmd.AddCommand(auth.NewCommand())
	cmd.AddCommand(diagnostics.NewDoctorCommand())
	cmd.AddCommand(completion.NewCommand())
	cmd.AddCommand(versioncmd.NewVersionCommand())

	cmd.SetHelpCommand(NewHelpCommand(cmd))

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
