package httpclient

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var secretParam = regexp.MustCompile(`(?i)(key|token|pass|secret|auth|credential)`)

// redactURL renders u for logs with user info and secret-looking query
// values replaced. Query order is kept.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	safe := *u
	safe.User = nil
	safe.RawQuery = ""
	safe.ForceQuery = false
	out := safe.String()

	if u.User != nil {
		prefix := safe.Scheme + "://"
		out = prefix + redacted + "@" + strings.TrimPrefix(out, prefix)
	}
	if u.RawQuery == "" {
		return out
	}

	pairs := strings.Split(u.RawQuery, "&")
	for i, pair := range pairs {
		name, _, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(name); err == nil && secretParam.MatchString(decoded) {
			pairs[i] = name + "=" + redacted
		}
	}
	return out + "?" + strings.Join(pairs, "&")
}
