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

// Package secrets resolves credentials, such as the remote API token, from
// the environment or the system keychain.
//
// Configuration values may reference a secret instead of holding it:
//
//	api_token: keychain:flowgate-prod
//	api_token: env:PROD_API_TOKEN
//
// Values without a recognized scheme are returned unchanged.
package secrets

import (
	"context"
	"errors"
	"os"
	"strings"
)

var (
	ErrSecretNotFound     = errors.New("secret not found")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrReadOnlyBackend    = errors.New("backend is read-only")
)

// Backend is one place a secret can live. Its Name doubles as the scheme of
// a reference ("keychain:name").
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Available() bool
}

const envSecretPrefix = "FLOWGATE_SECRET_"

// EnvBackend looks secrets up in the process environment, first as
// FLOWGATE_SECRET_<KEY> and then under the key itself. Writes are refused.
type EnvBackend struct {
	lookup func(string) (string, bool)
}

func NewEnvBackend() *EnvBackend {
	return &EnvBackend{lookup: os.LookupEnv}
}

func (e *EnvBackend) Name() string { return "env" }

func (e *EnvBackend) Available() bool { return true }

func (e *EnvBackend) Get(_ context.Context, key string) (string, error) {
	for _, name := range []string{EnvName(key), key} {
		if v, ok := e.lookup(name); ok && v != "" {
			return v, nil
		}
	}
	return "", ErrSecretNotFound
}

func (e *EnvBackend) Set(context.Context, string, string) error { return ErrReadOnlyBackend }

func (e *EnvBackend) Delete(context.Context, string) error { return ErrReadOnlyBackend }

// EnvName maps a secret key onto its environment variable, so
// "api-token/prod" becomes FLOWGATE_SECRET_API_TOKEN_PROD.
func EnvName(key string) string {
	upper := strings.Map(func(r rune) rune {
		switch r {
		case '/', '-', '.':
			return '_'
		}
		return r
	}, strings.ToUpper(key))
	return envSecretPrefix + upper
}
