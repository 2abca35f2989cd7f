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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/tombee/flowgate/internal/commands/shared"
)

func newRemote(t *testing.T, status int, wantToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantToken != "" && r.Header.Get("Authorization") != "Bearer "+wantToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"unauthorized"}`)
			return
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"message":"flow not found"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	keyring.MockInit()
	for _, key := range []string{"FLOWGATE_SERVER", "FLOWGATE_API_TOKEN", "FLOWGATE_BRIDGE_BACKEND", "FLOWGATE_NAMESPACE", "FLOWGATE_OAUTH2_CLIENT_SECRET"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "config.yaml")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return path
}

func checkByName(t *testing.T, result *DoctorResult, name string) Check {
	t.Helper()
	for _, c := range result.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %s check in %+v", name, result.Checks)
	return Check{}
}

func TestDiagnose_Healthy(t *testing.T) {
	srv := newRemote(t, http.StatusNotFound, "")
	dbPath := filepath.Join(t.TempDir(), "context.db")
	path := writeConfig(t, fmt.Sprintf("server:\n  url: %s/api/v1\nbridge:\n  backend: sqlite\n  path: %s\n", srv.URL, dbPath))

	result := Diagnose(context.Background(), path)
	assert.True(t, result.Healthy, "%+v", result.Checks)
	assert.True(t, result.ConfigExists)
	assert.Empty(t, result.Recommendations)
	assert.Len(t, result.Checks, 4)
	assert.Contains(t, checkByName(t, result, "bridge").Message, "sqlite backend")
	assert.Contains(t, checkByName(t, result, "remote").Message, "reachable")
}

func TestDiagnose_NoConfigFile(t *testing.T) {
	srv := newRemote(t, http.StatusNotFound, "")
	path := writeConfig(t, "")
	t.Setenv("FLOWGATE_SERVER", srv.URL)

	result := Diagnose(context.Background(), path)
	assert.True(t, result.Healthy)
	assert.False(t, result.ConfigExists)
	assert.Contains(t, checkByName(t, result, "config").Message, "defaults")
}

func TestDiagnose_KeychainToken(t *testing.T) {
	srv := newRemote(t, http.StatusNotFound, "s3cret")
	path := writeConfig(t, fmt.Sprintf("server:\n  url: %s\n  api_token: keychain:api-token\n", srv.URL))

	result := Diagnose(context.Background(), path)
	assert.False(t, result.Healthy)
	assert.False(t, checkByName(t, result, "token").OK)
	remote := checkByName(t, result, "remote")
	assert.False(t, remote.OK)
	assert.Contains(t, remote.Message, "rejected the credentials (401)")
	assert.Len(t, result.Recommendations, 2)

	require.NoError(t, keyring.Set("flowgate", "api-token", "s3cret"))
	result = Diagnose(context.Background(), path)
	assert.True(t, result.Healthy, "%+v", result.Checks)
	assert.Equal(t, "resolved keychain:api-token", checkByName(t, result, "token").Message)
}

func TestDiagnose_OAuth2ClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "flowgate" || secret != "client-s3cret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"invalid_client"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"issued","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer issued" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	path := writeConfig(t, fmt.Sprintf(`server:
  url: %[1]s/api/v1
  oauth2:
    token_url: %[1]s/token
    client_id: flowgate
    client_secret: keychain:oauth-client
`, srv.URL))

	result := Diagnose(context.Background(), path)
	assert.False(t, result.Healthy)
	assert.Contains(t, checkByName(t, result, "token").Message, "does not resolve")

	require.NoError(t, keyring.Set("flowgate", "oauth-client", "client-s3cret"))
	result = Diagnose(context.Background(), path)
	assert.True(t, result.Healthy, "%+v", result.Checks)
	assert.Contains(t, checkByName(t, result, "token").Message, "oauth2 client credentials for flowgate")
	assert.Contains(t, checkByName(t, result, "remote").Message, "reachable")
}

func TestDiagnose_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	path := writeConfig(t, fmt.Sprintf("server:\n  url: %s\n", url))

	result := Diagnose(context.Background(), path)
	assert.False(t, result.Healthy)
	assert.Contains(t, checkByName(t, result, "remote").Message, "unreachable")
}

func TestDiagnose_ServerError(t *testing.T) {
	srv := newRemote(t, http.StatusInternalServerError, "")
	path := writeConfig(t, fmt.Sprintf("server:\n  url: %s\n", srv.URL))

	result := Diagnose(context.Background(), path)
	assert.False(t, result.Healthy)
	assert.False(t, checkByName(t, result, "remote").OK)
}

func TestDiagnose_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "bridge:\n  backend: redis\n")

	result := Diagnose(context.Background(), path)
	assert.False(t, result.Healthy)
	assert.False(t, result.Success)
	assert.False(t, checkByName(t, result, "config").OK)
	for _, name := range []string{"token", "bridge", "remote"} {
		assert.True(t, checkByName(t, result, name).Skipped, name)
	}
	assert.Len(t, result.Recommendations, 1)
}

func TestDoctorCommand(t *testing.T) {
	srv := newRemote(t, http.StatusNotFound, "")
	path := writeConfig(t, fmt.Sprintf("server:\n  url: %s\n", srv.URL))
	shared.SetConfigPathForTest(path)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })

	cmd := NewDoctorCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "All checks passed")
}

func TestDoctorCommand_JSONFailure(t *testing.T) {
	path := writeConfig(t, "log:\n  level: loud\n")
	shared.SetConfigPathForTest(path)
	shared.SetJSONForTest(true)
	t.Cleanup(func() {
		shared.SetConfigPathForTest("")
		shared.SetJSONForTest(false)
	})

	cmd := NewDoctorCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, shared.ExitFailed, shared.ExitCode(err))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "doctor", resp["command"])
	assert.Equal(t, false, resp["healthy"])
}
