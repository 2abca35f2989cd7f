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
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/tombee/flowgate/internal/jq"
	flowerrors "github.com/tombee/flowgate/pkg/errors"
)

// alreadyExists matches conflict wording in error messages regardless of status code.
var alreadyExists = regexp.MustCompile(`(?i)already exists`)

// messageQuery extracts the top-level error message from a JSON error body.
var messageQuery = jq.MustCompile(`
if type == "object" then
  [ (.message, (.error | if type == "object" then .message else . end), .detail, .title)
    | select(type == "string" and . != "") ] | first // empty
else empty end`)

// detailsQuery extracts individual violations from a JSON error body.
var detailsQuery = jq.MustCompile(`
def text:
  if type == "object" then
    if ((.path // "") | tostring) != "" and (.message | type) == "string" then "\(.path): \(.message)"
    else (.message // .msg // tojson) | tostring end
  elif type == "string" then .
  else tojson end;
if type == "object" then
  ((._embedded | objects | .errors), .errors, .details, .violations)
  | arrays | .[] | text | select(. != "")
else empty end`)

// IsConflict reports whether a failed response means the identifier is taken.
func IsConflict(status int, message string) bool {
	return status == http.StatusConflict || alreadyExists.MatchString(message)
}

func mentionsConflict(details []string) bool {
	for _, d := range details {
		if alreadyExists.MatchString(d) {
			return true
		}
	}
	return false
}

// classify converts a non-2xx response into a typed error.
func classify(ctx context.Context, r request, status int, body []byte) error {
	message := responseMessage(ctx, body)

	if status == http.StatusNotFound && r.resource != "" {
		id := r.id
		if r.namespace != "" {
			id = r.namespace + "/" + r.id
		}
		return &flowerrors.NotFoundError{Resource: r.resource, ID: id}
	}

	details := detailsQuery.Strings(ctx, body)
	if IsConflict(status, message) || mentionsConflict(details) {
		return &flowerrors.ConflictError{
			Namespace:  r.namespace,
			ID:         r.id,
			StatusCode: status,
			Message:    message,
		}
	}

	return &flowerrors.RemoteRejection{
		StatusCode: status,
		Message:    message,
		Details:    details,
	}
}

// responseMessage returns the structured error message, or the trimmed body
// when it is not JSON.
func responseMessage(ctx context.Context, body []byte) string {
	if msgs := messageQuery.Strings(ctx, body); len(msgs) > 0 {
		return msgs[0]
	}
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return ""
	}
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	return text
}
