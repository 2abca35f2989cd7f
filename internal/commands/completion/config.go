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
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/internal/config"
	"github.com/tombee/flowgate/pkg/flow"
)

// ownerOnly reports whether the file at path, if any, is closed to group and
// other users. A missing file counts as private.
func ownerOnly(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.Mode().Perm()&0o077 == 0
}

// configuredNamespace is the default namespace completion should offer. A
// config file open to other users is never read here because shells run
// completion without the user noticing, and the file may hold a token.
func configuredNamespace() string {
	path := shared.GetConfigPath()
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return flow.DefaultNamespace
		}
	}
	if !ownerOnly(path) {
		return flow.DefaultNamespace
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil || cfg.Server.Namespace == "" {
		return flow.DefaultNamespace
	}
	return cfg.Server.Namespace
}

type completeFunc func() ([]string, cobra.ShellCompDirective)

// guarded runs fn and turns a panic or nil result into an empty list, so a
// broken file in the tree never surfaces as a shell error.
func guarded(fn completeFunc) (out []string, dir cobra.ShellCompDirective) {
	defer func() {
		if recover() != nil {
			out, dir = []string{}, cobra.ShellCompDirectiveNoFileComp
		}
	}()
	out, dir = fn()
	if out == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return out, dir
}
