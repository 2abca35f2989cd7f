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

package remote

import (
	"net/url"
	"strings"
)

// Links builds user-facing URLs into the service's web UI.
type Links struct {
	// UIBaseURL is the root of the web UI, such as https://orchestrator.example.com.
	// When empty every link is empty.
	UIBaseURL string
}

func (l Links) build(segments ...string) string {
	base := strings.TrimRight(strings.TrimSpace(l.UIBaseURL), "/")
	if base == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("/ui")
	for _, s := range segments {
		if s == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// FlowURL links to a stored workflow.
func (l Links) FlowURL(namespace, id string) string {
	if namespace == "" || id == "" {
		return ""
	}
	return l.build("flows", namespace, id)
}

// ExecutionURL links to an execution, optionally to a subview such as "logs" or "gantt".
func (l Links) ExecutionURL(namespace, flowID, executionID, subview string) string {
	if namespace == "" || flowID == "" || executionID == "" {
		return ""
	}
	return l.build("executions", namespace, flowID, executionID, subview)
}
