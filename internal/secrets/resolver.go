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
)

// Resolver looks secrets up across a fixed chain of backends. The first
// backend holding a key wins, so callers list overrides first.
type Resolver struct {
	chain []Backend
}

// NewResolver keeps the available backends in the order given.
func NewResolver(backends ...Backend) *Resolver {
	r := &Resolver{}
	for _, b := range backends {
		if b.Available() {
			r.chain = append(r.chain, b)
		}
	}
	return r
}

// DefaultResolver consults the environment before the system keychain.
func DefaultResolver() *Resolver {
	return NewResolver(NewEnvBackend(), NewKeychainBackend())
}

// Backends returns the chain in lookup order.
func (r *Resolver) Backends() []Backend {
	return r.chain
}

// Get returns the first value found for key. Backend failures other than a
// missing key are reported only if no backend has the secret.
func (r *Resolver) Get(ctx context.Context, key string) (string, error) {
	if len(r.chain) == 0 {
		return "", fmt.Errorf("%w: no backends configured", ErrBackendUnavailable)
	}
	var failures []error
	for _, b := range r.chain {
		v, err := b.Get(ctx, key)
		switch {
		case err == nil:
			return v, nil
		case !errors.Is(err, ErrSecretNotFound):
			failures = append(failures, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	if len(failures) > 0 {
		return "", fmt.Errorf("secret %q: %w", key, errors.Join(failures...))
	}
	return "", fmt.Errorf("%w: %q", ErrSecretNotFound, key)
}

// Set stores value under key in the named backend, or in the first backend
// that accepts writes when name is empty.
func (r *Resolver) Set(ctx context.Context, key, value, name string) error {
	return r.write(ctx, name, func(b Backend) error { return b.Set(ctx, key, value) })
}

// Delete removes key from the named backend, or from the first backend that
// accepts writes when name is empty.
func (r *Resolver) Delete(ctx context.Context, key, name string) error {
	return r.write(ctx, name, func(b Backend) error { return b.Delete(ctx, key) })
}

func (r *Resolver) write(_ context.Context, name string, op func(Backend) error) error {
	for _, b := range r.chain {
		if name != "" && b.Name() != name {
			continue
		}
		err := op(b)
		if errors.Is(err, ErrReadOnlyBackend) && name == "" {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s backend: %w", b.Name(), err)
		}
		return nil
	}
	if name != "" {
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, name)
	}
	return fmt.Errorf("%w: no writable backend", ErrBackendUnavailable)
}

// Resolve expands a "<backend>:<key>" reference. Anything that is not a
// reference, including URLs, is returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	scheme, key, _ := strings.Cut(value, ":")
	for _, b := range r.chain {
		if b.Name() != scheme {
			continue
		}
		secret, err := b.Get(ctx, key)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", value, err)
		}
		return secret, nil
	}
	return "", fmt.Errorf("%w: %s", ErrBackendUnavailable, scheme)
}

// IsReference reports whether value names a secret rather than holding one.
func IsReference(value string) bool {
	scheme, key, ok := strings.Cut(value, ":")
	return ok && key != "" && (scheme == "env" || scheme == "keychain")
}
