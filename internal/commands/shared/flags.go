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

package shared

import "os"

// globalFlags holds the persistent flags bound by the root command.
type globalFlags struct {
	verbose bool
	quiet   bool
	json    bool
	noColor bool
	config  string
}

var (
	flags globalFlags

	// Build-time version information, set from main via ldflags
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to the verbose, quiet, json and
// config flag variables for binding by the root command.
func RegisterFlagPointers() (*bool, *bool, *bool, *string) {
	return &flags.verbose, &flags.quiet, &flags.json, &flags.config
}

// NoColorFlag returns the pointer bound to --no-color.
func NoColorFlag() *bool {
	return &flags.noColor
}

// ApplyOutputFlags disables colored output when --no-color, --json or NO_COLOR asks for it.
func ApplyOutputFlags() {
	if flags.noColor || flags.json || colorDisabledByEnv() {
		DisableColor()
	}
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return flags.verbose
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return flags.quiet
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return flags.json
}

// GetConfigPath returns the --config path, falling back to FLOWGATE_CONFIG.
// Empty means the default location.
func GetConfigPath() string {
	if flags.config != "" {
		return flags.config
	}
	return os.Getenv("FLOWGATE_CONFIG")
}

// GetVersion returns version, commit and build date
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// SetConfigPathForTest sets the config path for testing purposes
func SetConfigPathForTest(path string) {
	flags.config = path
}

// SetJSONForTest sets the JSON output flag for testing purposes
func SetJSONForTest(enabled bool) {
	flags.json = enabled
}
