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

package validate

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/commands/completion"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/pkg/flow"
)

type options struct {
	namespace string
	fix       bool
	write     bool
	noRepair  bool
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "validate <file|glob>...",
		Short: "Validate and repair workflow documents",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Validate parses each workflow document, checks the fields the remote
engine requires and applies the heuristic repairs (missing namespace, missing
task ids, scalar retry, string env). A document is valid when no diagnostics
remain after repair.

Arguments may be file paths or doublestar globs such as "flows/**/*.yaml".
Validation never contacts the remote server.

See also: flowgate publish, flowgate watch`,
		Example: `  # Validate a single document
  flowgate validate flow.yaml

  # Validate every document under flows/
  flowgate validate 'flows/**/*.yaml'

  # Print the repaired document
  flowgate validate flow.yaml --fix

  # Repair documents in place
  flowgate validate 'flows/*.yaml' --write`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowFiles,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.namespace, "namespace", "n", flow.DefaultNamespace, "Namespace assigned to documents without one")
	cmd.Flags().BoolVar(&opts.fix, "fix", false, "Print the repaired document to stdout")
	cmd.Flags().BoolVar(&opts.write, "write", false, "Write repaired documents back to their files")
	cmd.Flags().BoolVar(&opts.noRepair, "no-repair", false, "Report diagnostics without applying repairs")
	cmd.MarkFlagsMutuallyExclusive("fix", "write")
	cmd.MarkFlagsMutuallyExclusive("no-repair", "write")

	_ = cmd.RegisterFlagCompletionFunc("namespace", completion.CompleteNamespaces)

	return cmd
}

// FileResult is the outcome of checking one file.
type FileResult struct {
	Path      string   `json:"path"`
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors"`
	Remaining []string `json:"remaining"`
	Fixes     []string `json:"fixes,omitempty"`
	Written   bool     `json:"written,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type validateResponse struct {
	shared.JSONResponse
	Files []FileResult `json:"files"`
}

func runValidate(cmd *cobra.Command, args []string, opts options) error {
	paths, err := expandPaths(args)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitFailed, Message: "invalid path pattern", Cause: err}
	}

	checkOpts := flow.CheckOptions{
		Repair:     flow.RepairOptions{DefaultNamespace: opts.namespace},
		SkipRepair: opts.noRepair,
	}

	results := make([]FileResult, 0, len(paths))
	invalid := 0
	for _, path := range paths {
		res, fixed := CheckFile(path, checkOpts)
		if res.Valid && opts.write && fixed != nil {
			if err := writeFile(path, fixed); err != nil {
				res.Error = err.Error()
				res.Valid = false
			} else {
				res.Written = true
			}
		}
		if !res.Valid {
			invalid++
		}
		results = append(results, res)

		if opts.fix && fixed != nil && !shared.GetJSON() {
			if _, err := cmd.OutOrStdout().Write(fixed); err != nil {
				return err
			}
		}
	}

	if shared.GetJSON() {
		resp := validateResponse{
			JSONResponse: shared.NewJSONResponse("validate", invalid == 0),
			Files:        results,
		}
		if err := shared.EmitJSON(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	} else {
		// --fix reserves stdout for the document
		out := cmd.OutOrStdout()
		if opts.fix {
			out = cmd.ErrOrStderr()
		}
		PrintResults(out, results)
	}

	if invalid > 0 {
		if shared.GetJSON() {
			return shared.Silent(shared.ExitInvalidWorkflow)
		}
		return shared.NewInvalidWorkflowError(fmt.Sprintf("%d of %d documents invalid", invalid, len(results)), nil)
	}
	return nil
}

// CheckFile validates one file and returns the serialized repaired document
// when a repair applied.
func CheckFile(path string, opts flow.CheckOptions) (FileResult, []byte) {
	res := FileResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = fmt.Sprintf("failed to read file: %v", err)
		return res, nil
	}

	result := flow.Check(data, opts)
	res.Valid = result.Valid
	res.Errors = result.Errors
	res.Remaining = result.Remaining
	res.Fixes = result.Fixes
	if result.RepairErr != nil {
		res.Error = result.RepairErr.Error()
	}

	if result.Fixed == nil {
		return res, nil
	}
	fixed, err := result.Fixed.Serialize()
	if err != nil {
		res.Error = fmt.Sprintf("failed to serialize repaired document: %v", err)
		return res, nil
	}
	return res, fixed
}

func writeFile(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, info.Mode().Perm())
}

// PrintResults writes one status line per file followed by its fixes and errors.
func PrintResults(w io.Writer, results []FileResult) {
	for _, r := range results {
		switch {
		case r.Valid && len(r.Fixes) == 0:
			fmt.Fprintln(w, shared.RenderOK(r.Path))
		case r.Valid:
			fmt.Fprintln(w, shared.RenderWarn(r.Path+" (valid after repair)"))
		default:
			fmt.Fprintln(w, shared.RenderError(r.Path))
		}

		for _, fix := range r.Fixes {
			fmt.Fprintln(w, "  "+shared.RenderFix(fix))
		}
		if !r.Valid {
			for _, diag := range r.Remaining {
				fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("error:"), diag)
			}
		}
		if r.Error != "" {
			fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("error:"), r.Error)
		}
		if r.Written {
			fmt.Fprintf(w, "  %s\n", shared.Muted.Render("written"))
		}
	}
}

// expandPaths resolves glob patterns to a sorted, de-duplicated list of files.
// Arguments without glob metacharacters are kept even if they do not exist, so
// the read error is reported against the path the user typed.
func expandPaths(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, arg := range args {
		if !hasMeta(arg) {
			if !seen[arg] {
				seen[arg] = true
				paths = append(paths, arg)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: no files match", arg)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	return paths, nil
}

func hasMeta(s string) bool {
	return bytes.ContainsAny([]byte(s), "*?[{")
}
