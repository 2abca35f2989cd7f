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
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	maxWorkflowFiles = 100
	maxSearchDepth   = 2
)

type workflowFile struct {
	path      string
	modTime   int64
	id        string
	namespace string
}

// CompleteWorkflowFiles offers workflow documents below the working
// directory, newest first.
func CompleteWorkflowFiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return guarded(func() ([]string, cobra.ShellCompDirective) {
		files, _ := discoverWorkflowFiles(".", maxSearchDepth)
		paths := []string{}
		for _, f := range files {
			if strings.HasPrefix(f.path, toComplete) {
				paths = append(paths, f.path)
			}
		}
		return paths, cobra.ShellCompDirectiveDefault
	})
}

// discoverWorkflowFiles finds YAML files at most maxDepth directories below
// root that look like workflow documents. Hidden directories and
// node_modules are skipped.
func discoverWorkflowFiles(root string, maxDepth int) ([]workflowFile, error) {
	var files []workflowFile
	err := doublestar.GlobWalk(os.DirFS(root), "**/*.{yaml,yml}", func(rel string, d fs.DirEntry) error {
		dirs := strings.Split(rel, "/")
		dirs = dirs[:len(dirs)-1]
		if len(dirs) > maxDepth || slices.ContainsFunc(dirs, skippedDir) {
			return nil
		}

		path := filepath.Join(root, filepath.FromSlash(rel))
		if !isSafeFile(path) {
			return nil
		}
		id, namespace, ok := readWorkflowHeader(path)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, workflowFile{path: path, modTime: info.ModTime().UnixNano(), id: id, namespace: namespace})
		return nil
	}, doublestar.WithFilesOnly(), doublestar.WithNoFollow())
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(files, func(a, b workflowFile) int {
		switch {
		case a.modTime > b.modTime:
			return -1
		case a.modTime < b.modTime:
			return 1
		}
		return 0
	})
	if len(files) > maxWorkflowFiles {
		files = files[:maxWorkflowFiles]
	}
	return files, nil
}

func skippedDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

func isSafeFile(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink == 0
}

// workflowHeader is the part of a document completion cares about.
type workflowHeader struct {
	ID               *string   `yaml:"id"`
	Namespace        string    `yaml:"namespace"`
	DefaultNamespace string    `yaml:"defaultNamespace"`
	Tasks            yaml.Node `yaml:"tasks"`
}

// readWorkflowHeader reports the identity a file declares. Files without an
// id or tasks key are not workflows.
func readWorkflowHeader(path string) (id, namespace string, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", false
	}
	var h workflowHeader
	if err := yaml.Unmarshal(data, &h); err != nil {
		return "", "", false
	}
	if h.ID == nil && h.Tasks.Kind == 0 {
		return "", "", false
	}
	if h.ID != nil {
		id = *h.ID
	}
	namespace = h.Namespace
	if namespace == "" {
		namespace = h.DefaultNamespace
	}
	return id, namespace, true
}
