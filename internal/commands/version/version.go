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

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/commands/shared"
)

// VersionInfo contains version metadata
type VersionInfo struct {
	shared.JSONResponse
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildDate   string `json:"build_date"`
	GoVersion   string `json:"go_version"`
	Platform    string `json:"platform"`
	MCPProtocol string `json:"mcp_protocol"`
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the flowgate version, commit, build date and the MCP protocol
version served by 'flowgate mcp'.`,
		Args: cobra.NoArgs,
		RunE: runVersion,
	}
}

// Collect returns the version information for this binary. Builds without
// ldflags fall back to the module and VCS data embedded by the Go toolchain.
func Collect() VersionInfo {
	v, c, b := shared.GetVersion()

	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && c == "unknown":
				c = s.Value
			case s.Key == "vcs.time" && b == "unknown":
				b = s.Value
			}
		}
	}

	return VersionInfo{
		JSONResponse: shared.NewJSONResponse("version", true),
		Version:      v,
		Commit:       c,
		BuildDate:    b,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		MCPProtocol:  mcp.LATEST_PROTOCOL_VERSION,
	}
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := Collect()

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), info)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "flowgate version %s\n", info.Version)
	fmt.Fprintf(w, "  commit:       %s\n", info.Commit)
	fmt.Fprintf(w, "  build date:   %s\n", info.BuildDate)
	fmt.Fprintf(w, "  go:           %s %s\n", info.GoVersion, info.Platform)
	fmt.Fprintf(w, "  mcp protocol: %s\n", info.MCPProtocol)
	return nil
}
