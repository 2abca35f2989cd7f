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
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// CompleteNamespaces completes --namespace values from the configured default
// and the namespaces declared by local workflow files.
func CompleteNamespaces(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return guarded(func() ([]string, cobra.ShellCompDirective) {
		seen := map[string]bool{configuredNamespace(): true}
		files, _ := discoverWorkflowFiles(".", maxSearchDepth)
		for _, f := range files {
			if f.namespace != "" {
				seen[f.namespace] = true
			}
		}

		return filterSorted(seen, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteFlowArgs completes the <namespace> <id> positional arguments of execute.
func CompleteFlowArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return CompleteNamespaces(cmd, args, toComplete)
	case 1:
		return guarded(func() ([]string, cobra.ShellCompDirective) {
			seen := map[string]bool{}
			files, _ := discoverWorkflowFiles(".", maxSearchDepth)
			for _, f := range files {
				if f.id != "" && f.namespace == args[0] {
					seen[f.id] = true
				}
			}
			return filterSorted(seen, toComplete), cobra.ShellCompDirectiveNoFileComp
		})
	default:
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
}

func filterSorted(set map[string]bool, prefix string) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		if strings.HasPrefix(v, prefix) {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
