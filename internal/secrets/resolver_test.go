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

package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestResolver_ChainOrder(t *testing.T) {
	keyring.MockInit()
	t.Setenv("FLOWGATE_SECRET_API_TOKEN", "from-env")

	keychain := NewKeychainBackend()
	require.True(t, keychain.Available())
	require.NoError(t, keychain.Set(context.Background(), "api-token", "from-keychain"))

	r := NewResolver(NewEnvBackend(), keychain)
	require.Len(t, r.Backends(), 2)
	assert.Equal(t, "env", r.Backends()[0].Name())

	value, err := r.Get(context.Background(), "api-token")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)

	value, err = NewResolver(keychain, NewEnvBackend()).Get(context.Background(), "api-token")
	require.NoError(t, err)
	assert.Equal(t, "from-keychain", value)
}

func TestResolver_Resolve(t *testing.T) {
	keyring.MockInit()
	t.Setenv("PROD_TOKEN", "env-secret")
	ctx := context.Background()

	r := NewResolver(NewEnvBackend(), NewKeychainBackend())
	require.NoError(t, r.Set(ctx, "prod", "keychain-secret", ""))

	tests := []struct {
		in   string
		want string
	}{
		{in: "keychain:prod", want: "keychain-secret"},
		{in: "env:PROD_TOKEN", want: "env-secret"},
		{in: "plain-token", want: "plain-token"},
		{in: "https://example.com", want: "https://example.com"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		got, err := r.Resolve(ctx, tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := r.Resolve(ctx, "keychain:missing")
	assert.True(t, errors.Is(err, ErrSecretNotFound))
}

func TestResolver_SetSkipsReadOnly(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	r := NewResolver(NewEnvBackend(), NewKeychainBackend())

	require.NoError(t, r.Set(ctx, "k", "v", ""))
	value, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	assert.ErrorIs(t, r.Set(ctx, "k", "v", "env"), ErrReadOnlyBackend)

	require.NoError(t, r.Delete(ctx, "k", "keychain"))
	_, err = r.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestResolver_NoBackends(t *testing.T) {
	_, err := NewResolver().Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestResolver_UnknownBackend(t *testing.T) {
	r := NewResolver(NewEnvBackend())
	_, err := r.Resolve(context.Background(), "keychain:prod")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, r.Set(context.Background(), "k", "v", ""), ErrBackendUnavailable)
}

func TestEnvBackend(t *testing.T) {
	env := &EnvBackend{lookup: func(name string) (string, bool) {
		vals := map[string]string{"FLOWGATE_SECRET_API_TOKEN_PROD": "a", "RAW_NAME": "b", "FLOWGATE_SECRET_EMPTY": ""}
		v, ok := vals[name]
		return v, ok
	}}
	ctx := context.Background()

	v, err := env.Get(ctx, "api-token/prod")
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = env.Get(ctx, "RAW_NAME")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	_, err = env.Get(ctx, "empty")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.ErrorIs(t, env.Delete(ctx, "x"), ErrReadOnlyBackend)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "FLOWGATE_SECRET_API_TOKEN_PROD", EnvName("api-token/prod"))
	assert.Equal(t, "FLOWGATE_SECRET_A_B", EnvName("a.b"))
}
