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

package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/bridge"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/internal/config"
	"github.com/tombee/flowgate/internal/remote"
	"github.com/tombee/flowgate/internal/secrets"
	flowerrors "github.com/tombee/flowgate/pkg/errors"
)

// probeFlowID is looked up on the remote to test reachability. A 404 is a pass.
const probeFlowID = "flowgate-doctor-probe"

// Check is the outcome of one diagnostic step.
type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Message string `json:"message"`
}

// DoctorResult contains the overall health check results
type DoctorResult struct {
	shared.JSONResponse
	ConfigPath      string   `json:"config_path"`
	ConfigExists    bool     `json:"config_exists"`
	Checks          []Check  `json:"checks"`
	Recommendations []string `json:"recommendations"`
	Healthy         bool     `json:"healthy"`
}

func (r *DoctorResult) add(c Check, recommendation string) {
	r.Checks = append(r.Checks, c)
	if !c.OK && !c.Skipped {
		r.Healthy = false
		if recommendation != "" {
			r.Recommendations = append(r.Recommendations, recommendation)
		}
	}
}

// NewDoctorCommand creates the doctor command
func NewDoctorCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use: "doctor",
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "Check configuration and connectivity",
		Long: `Perform a health check of the flowgate setup.

This command checks:
  - The config file loads and validates
  - The API token or OAuth2 client secret reference resolves
  - The context bridge can store and read a value
  - The remote service is reachable and accepts the credentials

Provides recommendations for fixing any issues found.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runDoctor(ctx, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall time limit for the checks")
	return cmd
}

func runDoctor(ctx context.Context, w io.Writer) error {
	result := Diagnose(ctx, shared.GetConfigPath())

	if shared.GetJSON() {
		if err := shared.EmitJSON(w, result); err != nil {
			return err
		}
	} else {
		printResult(w, result)
	}

	if !result.Healthy {
		return shared.Silent(shared.ExitFailed)
	}
	return nil
}

// Diagnose runs every check against the config at cfgPath (or the default location).
func Diagnose(ctx context.Context, cfgPath string) *DoctorResult {
	result := &DoctorResult{
		JSONResponse:    shared.NewJSONResponse("doctor", true),
		Recommendations: []string{},
		Healthy:         true,
	}

	if cfgPath == "" {
		p, err := config.ConfigPath()
		if err != nil {
			result.add(Check{Name: "config", Message: fmt.Sprintf("failed to determine config path: %v", err)}, "")
			result.Success = false
			return result
		}
		cfgPath = p
	}
	result.ConfigPath = cfgPath

	loadPath := ""
	if _, err := os.Stat(cfgPath); err == nil {
		result.ConfigExists = true
		loadPath = cfgPath
	}

	cfg, err := config.Load(loadPath)
	if err != nil {
		result.add(Check{Name: "config", Message: err.Error()},
			"Fix the configuration errors; 'flowgate config validate' lists them.")
		for _, name := range []string{"token", "bridge", "remote"} {
			result.add(Check{Name: name, Skipped: true, Message: "skipped: configuration did not load"}, "")
		}
		result.Success = false
		return result
	}
	if result.ConfigExists {
		result.add(Check{Name: "config", OK: true, Message: "loaded " + cfgPath}, "")
	} else {
		result.add(Check{Name: "config", OK: true, Message: "no file; using defaults and environment"}, "")
	}

	var auth remote.Option
	var tokenCheck Check
	var tokenFix string
	if cfg.Server.OAuth2.Enabled() {
		auth, tokenCheck, tokenFix = checkOAuth2(ctx, *cfg.Server.OAuth2)
	} else {
		auth, tokenCheck, tokenFix = checkToken(ctx, cfg.Server.APIToken)
	}
	result.add(tokenCheck, tokenFix)

	bridgeCheck, bridgeFix := checkBridge(ctx, cfg.Bridge)
	result.add(bridgeCheck, bridgeFix)

	remoteCheck, remoteFix := checkRemote(ctx, cfg, auth)
	result.add(remoteCheck, remoteFix)

	result.Success = result.Healthy
	return result
}

func checkToken(ctx context.Context, raw string) (remote.Option, Check, string) {
	check := Check{Name: "token"}
	switch {
	case raw == "":
		check.OK = true
		check.Message = "no API token configured"
		return remote.WithToken(""), check, ""
	case secrets.IsReference(raw):
		token, err := secrets.DefaultResolver().Resolve(ctx, raw)
		if err != nil {
			check.Message = fmt.Sprintf("%s does not resolve: %v", raw, err)
			return remote.WithToken(""), check, "Store the token with 'flowgate auth set-token'."
		}
		check.OK = true
		check.Message = "resolved " + raw
		return remote.WithToken(token), check, ""
	default:
		check.OK = true
		check.Message = "plaintext token in configuration"
		return remote.WithToken(raw), check, ""
	}
}

// checkOAuth2 resolves the client secret but does not fetch a token; the
// remote check does that on its first request.
func checkOAuth2(ctx context.Context, cfg remote.OAuth2Config) (remote.Option, Check, string) {
	check := Check{Name: "token"}
	if secrets.IsReference(cfg.ClientSecret) {
		secret, err := secrets.DefaultResolver().Resolve(ctx, cfg.ClientSecret)
		if err != nil {
			check.Message = fmt.Sprintf("oauth2 client secret %s does not resolve: %v", cfg.ClientSecret, err)
			return remote.WithToken(""), check, "Store the client secret under the referenced name, or set FLOWGATE_OAUTH2_CLIENT_SECRET."
		}
		cfg.ClientSecret = secret
	}
	check.OK = true
	check.Message = fmt.Sprintf("oauth2 client credentials for %s via %s", cfg.ClientID, cfg.TokenURL)
	return remote.WithOAuth2(cfg), check, ""
}

func checkBridge(ctx context.Context, cfg bridge.Config) (Check, string) {
	check := Check{Name: "bridge"}
	fix := "Check bridge.backend and bridge.path in the configuration."

	store, err := bridge.Open(cfg)
	if err != nil {
		check.Message = err.Error()
		return check, fix
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	conversation := "flowgate-doctor-" + uuid.NewString()
	const key, value = "probe", "ok"
	if err := store.Set(ctx, conversation, key, value); err != nil {
		check.Message = fmt.Sprintf("write failed: %v", err)
		return check, fix
	}
	got, found, err := store.Get(ctx, conversation, key)
	_ = store.Delete(ctx, conversation, key)
	if err != nil || !found || got != value {
		check.Message = fmt.Sprintf("read back failed (found=%t, err=%v)", found, err)
		return check, fix
	}

	check.OK = true
	check.Message = cfg.Backend + " backend"
	if cfg.Backend == bridge.BackendSQLite {
		check.Message += " at " + cfg.Path
	}
	return check, ""
}

func checkRemote(ctx context.Context, cfg *config.Config, auth remote.Option) (Check, string) {
	check := Check{Name: "remote"}

	client, err := remote.New(cfg.Server.URL, auth)
	if err != nil {
		check.Message = err.Error()
		return check, "Set server.url to the API base URL."
	}

	start := time.Now()
	_, err = client.GetFlow(ctx, cfg.Server.Namespace, probeFlowID)
	elapsed := time.Since(start).Round(time.Millisecond)

	var notFound *flowerrors.NotFoundError
	var rejection *flowerrors.RemoteRejection
	var transport *flowerrors.TransportError
	switch {
	case err == nil, errors.As(err, &notFound):
		check.OK = true
		check.Message = fmt.Sprintf("%s reachable (%s)", client.BaseURL(), elapsed)
		return check, ""
	case errors.As(err, &rejection) && (rejection.StatusCode == http.StatusUnauthorized || rejection.StatusCode == http.StatusForbidden):
		check.Message = fmt.Sprintf("%s rejected the credentials (%d)", client.BaseURL(), rejection.StatusCode)
		if cfg.Server.OAuth2.Enabled() {
			return check, "Check server.oauth2 client_id and client_secret with the identity provider."
		}
		return check, "Update the token with 'flowgate auth set-token'."
	case errors.As(err, &transport):
		check.Message = fmt.Sprintf("%s unreachable: %v", client.BaseURL(), transport.Cause)
		return check, "Check server.url and that the service is running."
	default:
		check.Message = fmt.Sprintf("%s: %v", client.BaseURL(), err)
		return check, "Check server.url points at the API base, such as http://localhost:8080/api/v1."
	}
}

func printResult(w io.Writer, result *DoctorResult) {
	fmt.Fprintln(w, shared.Header.Render("flowgate doctor"))
	fmt.Fprintln(w)

	for _, c := range result.Checks {
		status := shared.RenderStatus(c.OK, "OK")
		switch {
		case c.Skipped:
			status = shared.Muted.Render("[SKIP]")
		case !c.OK:
			status = shared.RenderStatus(false, "FAIL")
		}
		fmt.Fprintf(w, "  %-6s %s %s\n", c.Name, status, c.Message)
	}
	fmt.Fprintln(w)

	if len(result.Recommendations) > 0 {
		fmt.Fprintln(w, shared.Header.Render("Recommendations:"))
		for _, rec := range result.Recommendations {
			fmt.Fprintf(w, "  %s %s\n", shared.StatusInfo.Render(shared.SymbolInfo), rec)
		}
		fmt.Fprintln(w)
	}

	if result.Healthy {
		fmt.Fprintln(w, shared.RenderOK("All checks passed"))
	} else {
		fmt.Fprintln(w, shared.RenderError("Some checks failed"))
	}
}
