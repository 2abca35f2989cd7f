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
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// DefaultKeychainService groups flowgate entries in the OS keychain.
	DefaultKeychainService = "flowgate"

	probeKey = "__flowgate_availability_test__"
)

// KeychainBackend stores API tokens in the OS keychain: Keychain Access on
// macOS, the Secret Service (GNOME Keyring, KWallet) on Linux and the
// Credential Manager on Windows.
type KeychainBackend struct {
	service   string
	available bool
}

// NewKeychainBackend creates a backend for DefaultKeychainService.
func NewKeychainBackend() *KeychainBackend {
	return NewKeychainBackendForService(DefaultKeychainService)
}

// NewKeychainBackendForService creates a backend whose entries live under
// service, probing once whether the keyring can be reached.
func NewKeychainBackendForService(service string) *KeychainBackend {
	k := &KeychainBackend{service: service, available: true}

	// A locked or missing keyring fails with something other than ErrNotFound
	if _, err := keyring.Get(service, probeKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		k.available = false
	}
	return k
}

// Name returns the backend identifier used in keychain:<name> references.
func (k *KeychainBackend) Name() string {
	return "keychain"
}

// Service returns the keychain service the entries are stored under.
func (k *KeychainBackend) Service() string {
	return k.service
}

// Get returns the token stored under key.
func (k *KeychainBackend) Get(ctx context.Context, key string) (string, error) {
	if err := k.check(key); err != nil {
		return "", err
	}
	value, err := keyring.Get(k.service, key)
	if err != nil {
		return "", k.translate(key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous entry. Empty values are rejected.
func (k *KeychainBackend) Set(ctx context.Context, key string, value string) error {
	if err := k.check(key); err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("keychain: refusing to store an empty value for %s", key)
	}
	if err := keyring.Set(k.service, key, value); err != nil {
		return k.translate(key, err)
	}
	return nil
}

// Delete removes the entry under key.
func (k *KeychainBackend) Delete(ctx context.Context, key string) error {
	if err := k.check(key); err != nil {
		return err
	}
	if err := keyring.Delete(k.service, key); err != nil {
		return k.translate(key, err)
	}
	return nil
}

// Available reports whether the keyring answered the startup probe.
func (k *KeychainBackend) Available() bool {
	return k.available
}

func (k *KeychainBackend) check(key string) error {
	if !k.available {
		return fmt.Errorf("%w: keychain service unavailable", ErrBackendUnavailable)
	}
	if key == "" {
		return fmt.Errorf("keychain: empty key")
	}
	return nil
}

// translate maps go-keyring failures onto the package sentinels.
func (k *KeychainBackend) translate(key string, err error) error {
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	case isKeychainUnavailableError(err):
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, err.Error())
	default:
		return fmt.Errorf("keychain error: %w", err)
	}
}

// unavailableIndicators are substrings of platform errors for a locked or
// unreachable keyring.
var unavailableIndicators = []string{
	"locked",
	"cannot access",
	"permission denied",
	"failed to unlock",
	"user interaction required",
	"secret service",
	"dbus",
	"user canceled",
}

func isKeychainUnavailableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, indicator := range unavailableIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
