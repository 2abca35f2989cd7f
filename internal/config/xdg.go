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

package config

import (
	"os"
	"path/filepath"
)

const appDir = "flowgate"

// xdgDir returns $env/flowgate, or ~/<fallback>/flowgate when env is unset.
// The XDG layout is used on every platform.
func xdgDir(env string, fallback ...string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, fallback...), appDir)...), nil
}

// ConfigPath is the default config file location. The directory is not
// created here; writers create it with mode 0700.
func ConfigPath() (string, error) {
	dir, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir holds local state such as the sqlite context store. Without a
// home directory it falls back to the temp dir.
func DataDir() string {
	dir, err := xdgDir("XDG_DATA_HOME", ".local", "share")
	if err != nil {
		return filepath.Join(os.TempDir(), appDir)
	}
	return dir
}
