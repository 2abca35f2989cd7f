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

package completion

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewCommand creates the completion command for generating shell completion scripts.
func NewCommand() *cobra.Command {
	var noDescriptions bool

	cmd := &cobra.Command{
		Use: "completion <shell>",
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for bash, zsh, fish or powershell.

Completions cover workflow files for validate and publish, namespaces for
--namespace, and <namespace> <id> pairs for execute, read from the YAML
documents under the current directory.`,
		Example: `  # Bash, current session
  source <(flowgate completion bash)

  # Zsh, installed once
  flowgate completion zsh > "${fpath[1]}/_flowgate"

  # Fish
  flowgate completion fish > ~/.config/fish/completions/flowgate.fish

  # PowerShell
  flowgate completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             shells,
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return generate(cmd.Root(), cmd.OutOrStdout(), args[0], !noDescriptions)
		},
	}

	cmd.Flags().BoolVar(&noDescriptions, "no-descriptions", false, "Omit suggestion descriptions")
	return cmd
}

var shells = []string{"bash", "zsh", "fish", "powershell"}

// generate writes the completion script for shell to w.
func generate(root *cobra.Command, w io.Writer, shell string, descriptions bool) error {
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(w, descriptions)
	case "zsh":
		if descriptions {
			return root.GenZshCompletion(w)
		}
		return root.GenZshCompletionNoDesc(w)
	case "fish":
		return root.GenFishCompletion(w, descriptions)
	case "powershell":
		if descriptions {
			return root.GenPowerShellCompletionWithDesc(w)
		}
		return root.GenPowerShellCompletion(w)
	default:
		return fmt.Errorf("unsupported shell %q", shell)
	}
}
