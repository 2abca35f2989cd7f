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

// Package watch re-validates workflow documents as they change on disk.
//
// A Watcher observes a directory tree with fsnotify, filters events through
// include and exclude glob patterns, debounces bursts of writes per file and
// hands each settled path to a Handler on the Run goroutine.
package watch
