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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/internal/config"
	"github.com/tombee/flowgate/internal/secrets"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and check configuration",
		Annotations: map[string]string{
			"group": "configuration",
		},
		Long: `View and check flowgate configuration.

Subcommands:
  show     - Display the effective configuration
  path     - Show config file location
  validate - Check the configuration file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathCommand())
	cmd.AddCommand(NewValidateCommand())

	// If no subcommand provided, default to 'show'
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runConfigShow(cmd, args)
	}

	return cmd
}

// newConfigShowCommand creates the 'config show' subcommand
func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration after defaults and environment overrides.

A plaintext API token is masked. Secret references such as keychain:api-token
are shown as written. Use --json for machine-readable output.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
}

// newConfigPathCommand creates the 'config path' subcommand
func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Args:  cobra.NoArgs,
		RunE:  runConfigPath,
	}
}

type showResponse struct {
	shared.JSONResponse
	Path   string         `json:"path"`
	Exists bool           `json:"exists"`
	Config map[string]any `json:"config"`
}

type pathResponse struct {
	shared.JSONResponse
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// resolvePath returns the config file in use and whether it exists.
func resolvePath() (string, bool, error) {
	cfgPath := shared.GetConfigPath()
	if cfgPath == "" {
		var err error
		cfgPath, err = config.ConfigPath()
		if err != nil {
			return "", false, fmt.Errorf("failed to determine config path: %w", err)
		}
	}
	_, err := os.Stat(cfgPath)
	return cfgPath, err == nil, nil
}

// runConfigShow displays the current configuration
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfgPath, exists, err := resolvePath()
	if err != nil {
		return err
	}

	loadPath := cfgPath
	if !exists {
		loadPath = ""
	}
	cfg, err := config.Load(loadPath)
	if err != nil {
		return shared.NewConfigError("failed to load config", err)
	}

	masked := maskSensitiveConfig(cfg)

	if shared.GetJSON() {
		values, err := toMap(masked)
		if err != nil {
			return err
		}
		return shared.EmitJSON(cmd.OutOrStdout(), showResponse{
			JSONResponse: shared.NewJSONResponse("config show", true),
			Path:         cfgPath,
			Exists:       exists,
			Config:       values,
		})
	}

	w := cmd.OutOrStdout()
	if exists {
		fmt.Fprintf(w, "Configuration: %s\n", cfgPath)
	} else {
		fmt.Fprintf(w, "Configuration: defaults (no file at %s)\n", cfgPath)
	}
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(masked); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return encoder.Close()
}

// runConfigPath displays the config file path
func runConfigPath(cmd *cobra.Command, args []string) error {
	cfgPath, exists, err := resolvePath()
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), pathResponse{
			JSONResponse: shared.NewJSONResponse("config path", true),
			Path:         cfgPath,
			Exists:       exists,
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
	return nil
}

// maskSensitiveConfig returns a copy of cfg with secrets masked
func maskSensitiveConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Server.APIToken = maskAPIKey(cfg.Server.APIToken)
	if cfg.Server.OAuth2 != nil {
		oauth := *cfg.Server.OAuth2
		oauth.ClientSecret = maskAPIKey(oauth.ClientSecret)
		masked.Server.OAuth2 = &oauth
	}
	if len(cfg.Tracing.Headers) > 0 {
		masked.Tracing.Headers = make(map[string]string, len(cfg.Tracing.Headers))
		for k, v := range cfg.Tracing.Headers {
			masked.Tracing.Headers[k] = maskAPIKey(v)
		}
	}
	return &masked
}

// maskAPIKey masks a secret for display. References are left as written.
func maskAPIKey(key string) string {
	if key == "" || secrets.IsReference(key) {
		return key
	}

	// Show first 4 and last 4 characters
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// toMap converts cfg to a generic map keyed by its YAML field names.
func toMap(cfg *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return out, nil
}
