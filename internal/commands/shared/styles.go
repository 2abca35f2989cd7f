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

package shared

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/tombee/flowgate/internal/publish"
)

// Terminal styles. Colors are ANSI 256 codes.
var (
	StatusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	StatusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	StatusInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue
	Muted       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	Bold        = lipgloss.NewStyle().Bold(true)
	Header      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

	// Identifier highlights namespace/id pairs in publish and execute output.
	Identifier = lipgloss.NewStyle().Bold(true)
)

// Status symbols
const (
	SymbolOK    = "✓"
	SymbolWarn  = "⚠"
	SymbolError = "✗"
	SymbolInfo  = "•"
)

// DisableColor strips colors from all styles, as for --no-color or NO_COLOR.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// colorDisabledByEnv reports whether NO_COLOR is set (https://no-color.org).
func colorDisabledByEnv() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// RenderOK renders a success line
func RenderOK(msg string) string {
	return StatusOK.Render(SymbolOK) + " " + msg
}

// RenderWarn renders a warning line
func RenderWarn(msg string) string {
	return StatusWarn.Render(SymbolWarn) + " " + msg
}

// RenderError renders a failure line
func RenderError(msg string) string {
	return StatusError.Render(SymbolError) + " " + msg
}

// RenderStatus renders a bracketed label like [OK] or [FAIL]
func RenderStatus(ok bool, label string) string {
	if ok {
		return StatusOK.Render("[" + label + "]")
	}
	return StatusError.Render("[" + label + "]")
}

// RenderLabel renders a dim key for key: value pairs
func RenderLabel(label string) string {
	return Muted.Render(label)
}

// RenderFix renders one applied repair
func RenderFix(msg string) string {
	return StatusInfo.Render(SymbolInfo) + " fixed " + msg
}

// RenderFlowRef renders namespace/id.
func RenderFlowRef(namespace, id string) string {
	return Identifier.Render(namespace + "/" + id)
}

// RenderOutcome colors a publish outcome: stored is green, a taken
// identifier is orange, anything else is red.
func RenderOutcome(o publish.Outcome) string {
	switch {
	case o.Succeeded():
		return StatusOK.Render(string(o))
	case o == publish.OutcomeConflict:
		return StatusWarn.Render(string(o))
	default:
		return StatusError.Render(string(o))
	}
}
