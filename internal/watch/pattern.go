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
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIncludePatterns selects workflow documents.
func DefaultIncludePatterns() []string {
	return []string{"*.yaml", "*.yml"}
}

// DefaultExcludePatterns returns common editor temporary files and system files.
func DefaultExcludePatterns() []string {
	return []string{
		// Vim
		"*.swp",
		"*.swo",
		".*.sw?",
		// Emacs
		"*~",
		"#*#",
		".#*",
		".DS_Store",
		"**/.git/**",
		"**/.idea/**",
		"**/.vscode/**",
		"*.tmp",
	}
}

// Matcher handles include and exclude glob matching for file paths using
// doublestar syntax, so ** matches across directories.
type Matcher struct {
	include []string
	exclude []string
}

// NewMatcher creates a matcher. An empty include list matches every file;
// exclude patterns are applied after include patterns.
func NewMatcher(include, exclude []string) (*Matcher, error) {
	for _, pattern := range include {
		if _, err := doublestar.Match(pattern, "test"); err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
	}
	for _, pattern := range exclude {
		if _, err := doublestar.Match(pattern, "test"); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}
	return &Matcher{include: include, exclude: exclude}, nil
}

// Match reports whether path is included and not excluded. Each pattern is
// tried against the full path and against the base name.
func (m *Matcher) Match(path string) bool {
	included := len(m.include) == 0
	for _, pattern := range m.include {
		if matchPattern(pattern, path) {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, pattern := range m.exclude {
		if matchPattern(pattern, path) {
			return false
		}
	}
	return true
}

func matchPattern(pattern, path string) bool {
	if matched, _ := doublestar.PathMatch(pattern, path); matched {
		return true
	}
	matched, _ := doublestar.Match(pattern, filepath.Base(path))
	return matched
}
