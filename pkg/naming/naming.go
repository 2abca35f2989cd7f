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

// Package naming derives identifier-safe slugs from free text and makes them
// unique with a time-ordered random suffix.
package naming

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultRoot is used when no other naming signal is available.
	DefaultRoot = "flow"

	// MaxRootLength caps the slug portion of a generated identifier.
	MaxRootLength = 64

	// randomLength is the number of base36 characters in the random part of a suffix.
	randomLength = 8

	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

	// suffixPattern matches a suffix produced by Generator.Suffix.
	suffixPattern = regexp.MustCompile(`-[0-9a-z]{6,12}-[0-9a-z]{8}$`)

	// slugLike matches identifiers the remote engine accepts as ids and namespaces.
	slugLike = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// Slugify lower-cases text, folds accented letters to ASCII, collapses every run
// of non-alphanumeric characters into a single '-' and trims leading and trailing
// separators. The result is capped at MaxRootLength and may be empty.
func Slugify(text string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, text)
	if err != nil {
		folded = text
	}

	slug := nonAlphanumeric.ReplaceAllString(strings.ToLower(folded), "-")
	slug = strings.Trim(slug, "-")

	if len(slug) > MaxRootLength {
		slug = strings.TrimRight(slug[:MaxRootLength], "-")
	}
	return slug
}

// IsSlugLike reports whether s is a non-empty identifier token the remote engine accepts.
func IsSlugLike(s string) bool {
	return slugLike.MatchString(s)
}

// Root strips a previously generated uniqueness suffix from id.
func Root(id string) string {
	return suffixPattern.ReplaceAllString(id, "")
}

// Generator produces uniqueness suffixes of the form "<base36 millis>-<random>".
// The zero value is not usable; call NewGenerator.
type Generator struct {
	mu     sync.Mutex
	now    func() time.Time
	random func(n int) string
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithRandom overrides the random string source, mainly for tests.
func WithRandom(random func(n int) string) Option {
	return func(g *Generator) {
		g.random = random
	}
}

// NewGenerator creates a Generator backed by the wall clock and crypto/rand.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now:    time.Now,
		random: randomBase36,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Suffix returns a fresh uniqueness token without the leading separator.
func (g *Generator) Suffix() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	millis := g.now().UnixMilli()
	return strconv.FormatInt(millis, 36) + "-" + g.random(randomLength)
}

// Unique slugifies root and appends a fresh suffix. An empty slug falls back to DefaultRoot.
func (g *Generator) Unique(root string) string {
	slug := Slugify(root)
	if slug == "" {
		slug = DefaultRoot
	}
	return slug + "-" + g.Suffix()
}

// randomBase36 returns n characters drawn uniformly from [0-9a-z].
func randomBase36(n int) string {
	var b strings.Builder
	b.Grow(n)
	limit := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms; fall back to the clock.
			idx = big.NewInt(time.Now().UnixNano() % int64(len(alphabet)))
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String()
}
