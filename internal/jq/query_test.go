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

package jq

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile(".foo | ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid jq expression")

	assert.Panics(t, func() { MustCompile("[") })
}

func TestQuery_Run(t *testing.T) {
	q := MustCompile(".items[] | .name")

	results, err := q.Run(context.Background(), map[string]any{
		"items": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, results)
	assert.Equal(t, ".items[] | .name", q.String())
}

func TestQuery_RunError(t *testing.T) {
	_, err := MustCompile(".a.b").Run(context.Background(), map[string]any{"a": "text"})
	assert.Error(t, err)
}

func TestQuery_Strings(t *testing.T) {
	q := MustCompile(".errors[]?")

	assert.Equal(t, []string{"x", "y"}, q.Strings(context.Background(), []byte(`{"errors": ["x", 3, "", "y"]}`)))
	assert.Empty(t, q.Strings(context.Background(), []byte("<html>oops</html>")))
	assert.Empty(t, q.Strings(context.Background(), nil))

	big := `{"errors": ["` + strings.Repeat("a", DefaultMaxInputSize) + `"]}`
	assert.Empty(t, q.Strings(context.Background(), []byte(big)))
}
