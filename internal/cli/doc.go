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

// Package cli assembles the flowgate command tree. The commands themselves
// live under internal/commands; this package owns the global flags, the
// JSON-capable help command and the mapping from errors to exit codes.
//
//	flowgate
//	  validate    check and repair documents (paths or globs)
//	  publish     check, resolve an identifier and publish
//	  execute     trigger a published workflow, optionally waiting
//	  watch       re-check documents as they change on disk
//	  context     read or write a conversation's current document
//	  mcp         serve the same operations to an agent over stdio
//	  config      show, locate or validate the config file
//	  auth        manage the API token in the OS keychain
//	  doctor      check config, token, bridge and remote reachability
//	  completion  generate shell completion scripts
//	  version     print build information
//
// Exit status is 0 on success, 1 on a general failure, 2 when a document is
// still invalid after repair, 3 when the remote did not store the workflow
// and 4 for configuration errors.
package cli
