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
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tombee/flowgate/internal/commands/shared"
)

const docsURL = "https://github.com/tombee/flowgate#readme"

// CommandDoc is the machine-readable form of one command and everything
// beneath it.
type CommandDoc struct {
	Name        string       `json:"name"`
	Path        string       `json:"path"`
	Short       string       `json:"short"`
	Long        string       `json:"long,omitempty"`
	Usage       string       `json:"usage"`
	Aliases     []string     `json:"aliases,omitempty"`
	Group       string       `json:"group,omitempty"`
	Examples    string       `json:"examples,omitempty"`
	Flags       []FlagDoc    `json:"flags,omitempty"`
	Subcommands []CommandDoc `json:"subcommands,omitempty"`
}

type FlagDoc struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required"`
}

// HelpResponse answers `help --json`. Commands is set for the whole tree and
// Detail for a single command.
type HelpResponse struct {
	shared.JSONResponse
	Commands    []CommandDoc `json:"commands,omitempty"`
	Detail      *CommandDoc  `json:"detail,omitempty"`
	GlobalFlags []FlagDoc    `json:"global_flags,omitempty"`
	DocsURL     string       `json:"docs_url"`
}

// NewHelpCommand replaces cobra's help command. With --json it describes the
// command tree for agents that drive the CLI.
func NewHelpCommand(root *cobra.Command) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long:  "Show help for flowgate or one of its commands. Use --json for a machine-readable command tree.",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := root
			if len(args) > 0 {
				found, _, err := root.Find(args)
				if err != nil || found == root {
					return fmt.Errorf("command %q not found", args[0])
				}
				target = found
			}

			if !asJSON && !shared.GetJSON() {
				return target.Help()
			}

			resp := HelpResponse{
				GlobalFlags: describeFlags(root.PersistentFlags()),
				DocsURL:     docsURL,
			}
			if target == root {
				resp.JSONResponse = shared.NewJSONResponse("help", true)
				resp.Commands = describe(root).Subcommands
			} else {
				doc := describe(target)
				resp.JSONResponse = shared.NewJSONResponse("help "+target.Name(), true)
				resp.Detail = &doc
			}
			return shared.EmitJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func describe(c *cobra.Command) CommandDoc {
	doc := CommandDoc{
		Name:     c.Name(),
		Path:     c.CommandPath(),
		Short:    c.Short,
		Long:     c.Long,
		Usage:    c.UseLine(),
		Aliases:  c.Aliases,
		Group:    c.Annotations["group"],
		Examples: c.Example,
		Flags:    describeFlags(c.LocalNonPersistentFlags()),
	}
	for _, sub := range c.Commands() {
		if !sub.Hidden {
			doc.Subcommands = append(doc.Subcommands, describe(sub))
		}
	}
	return doc
}

func describeFlags(fs *pflag.FlagSet) []FlagDoc {
	var out []FlagDoc
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		out = append(out, FlagDoc{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  required,
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
