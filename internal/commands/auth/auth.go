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

package auth

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/internal/config"
	"github.com/tombee/flowgate/internal/secrets"
)

// DefaultTokenName is the keychain entry holding the API token.
const DefaultTokenName = "api-token"

// NewCommand creates the auth command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the remote API token",
		Annotations: map[string]string{
			"group": "configuration",
		},
		Long: `Auth stores the bearer token for the remote server in the system keychain
and points the config file at it with a keychain: reference, so the token never
appears in plain text on disk.`,
	}

	cmd.AddCommand(newSetTokenCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newDeleteTokenCommand())
	return cmd
}

func newSetTokenCommand() *cobra.Command {
	var (
		name     string
		noConfig bool
	)

	cmd := &cobra.Command{
		Use:   "set-token",
		Short: "Store the API token in the system keychain",
		Long: `Set-token reads the token from stdin (hidden when stdin is a terminal),
stores it in the system keychain and sets server.api_token in the config file
to keychain:<name>.`,
		Example: `  # Prompt for the token
  flowgate auth set-token

  # Read it from a pipe
  echo "$TOKEN" | flowgate auth set-token`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(cmd)
			if err != nil {
				return &shared.ExitError{Code: shared.ExitFailed, Message: "failed to read token", Cause: err}
			}
			if token == "" {
				return &shared.ExitError{Code: shared.ExitFailed, Message: "token cannot be empty"}
			}

			resolver := secrets.DefaultResolver()
			if err := resolver.Set(cmd.Context(), name, token, "keychain"); err != nil {
				return &shared.ExitError{Code: shared.ExitFailed, Message: "failed to store token", Cause: err}
			}

			path, err := configPath()
			if err != nil {
				return shared.NewConfigError("", err)
			}
			if !noConfig {
				if err := setConfigValue(path, []string{"server", "api_token"}, "keychain:"+name); err != nil {
					return shared.NewConfigError("failed to update config", err)
				}
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), statusResponse{
					JSONResponse: shared.NewJSONResponse("auth set-token", true),
					Source:       "keychain:" + name,
					Token:        maskSecret(token),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("token stored in keychain as "+name))
			if !noConfig {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", shared.RenderLabel("config:"), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", DefaultTokenName, "Keychain entry name")
	cmd.Flags().BoolVar(&noConfig, "no-config", false, "Store the token without updating the config file")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show where the API token comes from",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}

			resp := statusResponse{
				JSONResponse: shared.NewJSONResponse("auth status", true),
				Server:       cfg.Server.URL,
				Source:       "none",
			}
			raw := cfg.Server.APIToken
			switch {
			case secrets.IsReference(raw):
				resp.Source = raw
				token, err := secrets.DefaultResolver().Resolve(cmd.Context(), raw)
				if err != nil {
					resp.Success = false
					resp.Error = err.Error()
				} else {
					resp.Token = maskSecret(token)
				}
			case raw != "":
				resp.Source = "plaintext"
				resp.Token = maskSecret(raw)
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), resp)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("server:"), resp.Server)
			fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("token source:"), resp.Source)
			switch {
			case resp.Error != "":
				fmt.Fprintln(w, shared.RenderError(resp.Error))
			case resp.Token != "":
				fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("token:"), resp.Token)
			}
			if resp.Source == "plaintext" {
				fmt.Fprintln(w, shared.RenderWarn("token is stored in plain text; run 'flowgate auth set-token' to move it to the keychain"))
			}
			if resp.Error != "" {
				return shared.Silent(shared.ExitConfigError)
			}
			return nil
		},
	}
}

func newDeleteTokenCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:           "delete-token",
		Short:         "Remove the API token from the system keychain",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := secrets.DefaultResolver().Delete(cmd.Context(), name, "keychain")
			if err != nil && !errors.Is(err, secrets.ErrSecretNotFound) {
				return &shared.ExitError{Code: shared.ExitFailed, Message: "failed to delete token", Cause: err}
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("token "+name+" removed"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", DefaultTokenName, "Keychain entry name")
	return cmd
}

type statusResponse struct {
	shared.JSONResponse
	Server string `json:"server,omitempty"`
	Source string `json:"source"`
	Token  string `json:"token,omitempty"`
	Error  string `json:"error,omitempty"`
}

// readToken reads from a pipe, or prompts with hidden input on a terminal.
func readToken(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Enter API token (hidden): ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func configPath() (string, error) {
	if p := shared.GetConfigPath(); p != "" {
		return p, nil
	}
	return config.ConfigPath()
}

// setConfigValue sets a nested key in the config file, creating the file when
// needed. Other keys and comments are preserved.
func setConfigValue(path string, keys []string, value string) error {
	var root yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("failed to read config: %w", err)
	}

	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	m := root.Content[0]
	if m.Kind != yaml.MappingNode {
		return fmt.Errorf("config root must be a mapping")
	}

	for i, key := range keys {
		last := i == len(keys)-1
		var child *yaml.Node
		for j := 0; j+1 < len(m.Content); j += 2 {
			if m.Content[j].Value == key {
				child = m.Content[j+1]
				break
			}
		}
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, child)
		}
		if last {
			*child = yaml.Node{Kind: yaml.ScalarNode, Value: value}
			break
		}
		if child.Kind != yaml.MappingNode {
			return fmt.Errorf("config key %s must be a mapping", key)
		}
		m = child
	}

	out, err := yaml.Marshal(&root)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, out, 0600)
}

// maskSecret shows the first and last four characters of long values.
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
