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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/bridge"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/internal/config"
	"github.com/tombee/flowgate/internal/secrets"
	"github.com/tombee/flowgate/internal/tracing"
	flowerrors "github.com/tombee/flowgate/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type validateResponse struct {
	shared.JSONResponse
	Path string `json:"path"`
	ValidationResult
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the configuration file structure and values.

Checks performed:
  - YAML syntax and structure
  - Server and UI URLs, default namespace
  - Log, context bridge and tracing settings
  - API token storage and file permissions

With --strict, warnings are treated as errors.`,
		Example: `  # Validate configuration
  flowgate config validate

  # Validate with warnings as errors
  flowgate config validate --strict

  # Get validation result as JSON
  flowgate config validate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

// runValidate performs configuration validation.
func runValidate(cmd *cobra.Command, strict bool) error {
	cfgPath, exists, err := resolvePath()
	if err != nil {
		return err
	}

	var result ValidationResult
	if !exists {
		result = ValidationResult{
			Valid:    true,
			Warnings: []string{fmt.Sprintf("No configuration file at %s; defaults apply", cfgPath)},
		}
	} else {
		result = validateFile(cfgPath)
	}

	return outputValidationResult(cmd.OutOrStdout(), cfgPath, result, strict)
}

// validateFile loads path and collects errors and warnings.
func validateFile(path string) ValidationResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return ValidationResult{Errors: []string{fmt.Sprintf("Failed to read config: %v", err)}}
	}

	var raw config.Config
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ValidationResult{Errors: []string{fmt.Sprintf("YAML parsing error: %v", err)}}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return ValidationResult{Errors: loadErrors(err)}
	}

	warnings := validateConfig(cfg, &raw)
	if raw.Server.APIToken != "" || raw.Server.OAuth2 != nil && raw.Server.OAuth2.ClientSecret != "" {
		if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0o077 != 0 {
			warnings = append(warnings, fmt.Sprintf("Config file holds an API token but has mode %04o; run 'chmod 600 %s'", info.Mode().Perm(), path))
		}
	}

	return ValidationResult{Valid: true, Warnings: warnings}
}

// loadErrors splits a combined validation failure into one entry per problem.
func loadErrors(err error) []string {
	var cfgErr *flowerrors.ConfigError
	if errors.As(err, &cfgErr) && cfgErr.Key == "validation" {
		return strings.Split(cfgErr.Reason, "; ")
	}
	return []string{err.Error()}
}

// validateConfig returns warnings for a loaded config. raw holds the values
// written in the file, before defaults and environment overrides.
func validateConfig(cfg, raw *config.Config) []string {
	var warnings []string

	if raw.Server.APIToken != "" && !secrets.IsReference(raw.Server.APIToken) {
		warnings = append(warnings, "server.api_token is stored in plaintext; run 'flowgate auth set-token' to move it to the keychain")
	}
	if o := raw.Server.OAuth2; o != nil && o.ClientSecret != "" && !secrets.IsReference(o.ClientSecret) {
		warnings = append(warnings, "server.oauth2.client_secret is stored in plaintext; use a keychain: or env: reference")
	}
	if cfg.Server.OAuth2.Enabled() && raw.Server.APIToken != "" {
		warnings = append(warnings, "server.api_token is ignored while server.oauth2 is configured")
	}
	if raw.Server.URL == "" {
		warnings = append(warnings, fmt.Sprintf("server.url is not set; using %s", cfg.Server.URL))
	}
	if cfg.Bridge.Backend == bridge.BackendMemory {
		warnings = append(warnings, "bridge.backend is memory; 'flowgate context' values do not persist between commands")
	}
	if (cfg.Tracing.Exporter == tracing.ExporterOTLP || cfg.Tracing.Exporter == tracing.ExporterOTLPHTTP) && cfg.Tracing.Endpoint == "" {
		warnings = append(warnings, fmt.Sprintf("tracing.exporter is %s but tracing.endpoint is empty; the exporter default applies", cfg.Tracing.Exporter))
	}

	return warnings
}

// outputValidationResult writes the result and returns an exit error when it fails.
func outputValidationResult(w io.Writer, path string, result ValidationResult, strict bool) error {
	failed := !result.Valid || (strict && len(result.Warnings) > 0)

	if shared.GetJSON() {
		if err := shared.EmitJSON(w, validateResponse{
			JSONResponse:     shared.NewJSONResponse("config validate", !failed),
			Path:             path,
			ValidationResult: result,
		}); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		if failed {
			return shared.Silent(shared.ExitConfigError)
		}
		return nil
	}

	if result.Valid {
		fmt.Fprintln(w, shared.RenderOK("Configuration is valid"))
	} else {
		fmt.Fprintln(w, shared.RenderError("Configuration validation failed"))
	}
	fmt.Fprintln(w)

	if len(result.Errors) > 0 {
		fmt.Fprintln(w, shared.Header.Render("Errors:"))
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  %s %s\n", shared.StatusError.Render(shared.SymbolError), err)
		}
		fmt.Fprintln(w)
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(w, shared.Header.Render("Warnings:"))
		for _, warn := range result.Warnings {
			fmt.Fprintf(w, "  %s %s\n", shared.StatusWarn.Render(shared.SymbolWarn), warn)
		}
		fmt.Fprintln(w)
	}

	if result.Valid && len(result.Warnings) == 0 {
		fmt.Fprintln(w, "No issues found.")
	}

	if !result.Valid {
		return shared.Silent(shared.ExitConfigError)
	}
	if strict && len(result.Warnings) > 0 {
		fmt.Fprintln(w, "Validation failed (strict mode: warnings treated as errors)")
		return shared.Silent(shared.ExitConfigError)
	}
	return nil
}
