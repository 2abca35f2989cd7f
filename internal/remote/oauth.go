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
	"errors"
	"fmt"
	"net/http"
	"strings"

	flowerrors "github.com/tombee/flowgate/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Config enables the client credentials grant in place of a static
// bearer token. ClientSecret may be a secret reference.
type OAuth2Config struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes,omitempty"`

	// Audience is sent as an extra token request parameter when set.
	Audience string `yaml:"audience,omitempty"`
}

// Enabled reports whether any OAuth2 setting is present.
func (o *OAuth2Config) Enabled() bool {
	return o != nil && (o.TokenURL != "" || o.ClientID != "" || o.ClientSecret != "")
}

// Problems lists what is missing or malformed, prefixed for config output.
func (o *OAuth2Config) Problems(prefix string) []string {
	if !o.Enabled() {
		return nil
	}
	var out []string
	if _, err := ParseBaseURL(o.TokenURL); err != nil {
		out = append(out, fmt.Sprintf("%s.token_url: %q is not an absolute http(s) URL", prefix, o.TokenURL))
	}
	if strings.TrimSpace(o.ClientID) == "" {
		out = append(out, prefix+".client_id is required")
	}
	if o.ClientSecret == "" {
		out = append(out, prefix+".client_secret is required")
	}
	return out
}

// WithOAuth2 authenticates every request with a client credentials token,
// fetched on first use and refreshed when it expires. Token requests go
// through the same HTTP client as API calls. The static token, if any, is
// not sent.
func WithOAuth2(cfg OAuth2Config) Option {
	return func(c *Client) error {
		if problems := cfg.Problems("oauth2"); len(problems) > 0 {
			return &flowerrors.ConfigError{Key: "server.oauth2", Reason: strings.Join(problems, "; ")}
		}
		c.oauth = &cfg
		return nil
	}
}

// authorize wraps base so each request carries an OAuth2 access token.
func (o *OAuth2Config) authorize(base *http.Client) *http.Client {
	cc := &clientcredentials.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
	}
	if o.Audience != "" {
		cc.EndpointParams = map[string][]string{"audience": {o.Audience}}
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: cc.TokenSource(ctx),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	}
}

// tokenRejection converts a failed token request into a RemoteRejection so
// bad client credentials are reported like any other refused call.
func tokenRejection(err error) (*flowerrors.RemoteRejection, bool) {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return nil, false
	}
	status := http.StatusUnauthorized
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	msg := "oauth2 token request failed"
	if re.ErrorCode != "" {
		msg += ": " + re.ErrorCode
	}
	rej := &flowerrors.RemoteRejection{StatusCode: status, Message: msg}
	if re.ErrorDescription != "" {
		rej.Details = []string{re.ErrorDescription}
	}
	return rej, true
}
