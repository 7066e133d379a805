// SPDX-FileCopyrightText: 2025 FunTW <dev@funtw.io>
//
// SPDX-License-Identifier: MIT

package httpsoverproxy

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// requestDraft is the mutable request state authenticators write into
// before the transport request is materialized.
type requestDraft struct {
	method       string
	rawURL       string
	headers      map[string]string
	query        url.Values
	bodyFragment map[string]any
	lowercase    bool
}

func (d *requestDraft) setHeader(name, value string) {
	d.headers[canonicalHeaderName(name, d.lowercase)] = value
}

// Authenticator applies one authentication variant to a request draft.
type Authenticator interface {
	Apply(draft *requestDraft) error
}

// NoopAuthenticator - no authentication.
type NoopAuthenticator struct{}

func (NoopAuthenticator) Apply(*requestDraft) error { return nil }

type basicAuthenticator struct {
	username string
	password string
}

func (a *basicAuthenticator) Apply(draft *requestDraft) error {
	draft.setHeader("Authorization", basicAuthHeader(a.username, a.password))
	return nil
}

type bearerAuthenticator struct {
	token string
}

func (a *bearerAuthenticator) Apply(draft *requestDraft) error {
	draft.setHeader("Authorization", "Bearer "+a.token)
	return nil
}

type headerAuthenticator struct {
	name  string
	value string
}

func (a *headerAuthenticator) Apply(draft *requestDraft) error {
	if a.name == "" {
		return newError(CodeMissingRequiredField, "header auth requires a header name")
	}
	draft.setHeader(a.name, a.value)
	return nil
}

type queryAuthenticator struct {
	name  string
	value string
}

func (a *queryAuthenticator) Apply(draft *requestDraft) error {
	if a.name == "" {
		return newError(CodeMissingRequiredField, "query auth requires a parameter name")
	}
	draft.query.Set(a.name, a.value)
	return nil
}

// customAuthenticator merges caller-supplied headers and query additions and
// stages a body fragment for the later-wins merge into the final body.
type customAuthenticator struct {
	headers map[string]string
	query   map[string]string
	body    map[string]any
}

func (a *customAuthenticator) Apply(draft *requestDraft) error {
	for name, value := range a.headers {
		draft.setHeader(name, value)
	}
	for name, value := range a.query {
		draft.query.Set(name, value)
	}
	if len(a.body) > 0 {
		if draft.bodyFragment == nil {
			draft.bodyFragment = make(map[string]any, len(a.body))
		}
		for k, v := range a.body {
			draft.bodyFragment[k] = v
		}
	}
	return nil
}

// predefinedAuthenticator resolves an opaque credential record from the host
// and maps it by shape onto the request.
type predefinedAuthenticator struct {
	credentialType string
	source         CredentialSource
	signer         OAuth1Signer
}

func (a *predefinedAuthenticator) Apply(draft *requestDraft) error {
	if a.source == nil {
		return newError(CodeMissingRequiredField,
			"predefined credential type %q requires a credential source", a.credentialType)
	}
	creds, err := a.source.Credentials(a.credentialType)
	if err != nil {
		return fmt.Errorf("failed to resolve credential type %q: %w", a.credentialType, err)
	}

	switch {
	case creds["access_token"] != nil:
		draft.setHeader("Authorization", fmt.Sprintf("Bearer %v", creds["access_token"]))

	case creds["oauth_token"] != nil && creds["oauth_token_secret"] != nil:
		if a.signer == nil {
			return newError(CodeMissingRequiredField,
				"credential type %q carries OAuth1 tokens but no OAuth1 signer is configured", a.credentialType)
		}
		header, err := a.signer.Sign(draft.method, draft.rawURL, creds)
		if err != nil {
			return fmt.Errorf("oauth1 signing failed: %w", err)
		}
		draft.setHeader("Authorization", header)

	case creds["apiKey"] != nil:
		headerName := stringOr(creds["headerName"], "Authorization")
		prefix := stringOr(creds["prefix"], "Bearer")
		draft.setHeader(headerName, fmt.Sprintf("%s %v", prefix, creds["apiKey"]))

	case creds["username"] != nil && creds["password"] != nil:
		draft.setHeader("Authorization",
			basicAuthHeader(fmt.Sprint(creds["username"]), fmt.Sprint(creds["password"])))
	}

	// Any custom headers ride along last, shallow-merged.
	if custom, ok := creds["customHeaders"].(map[string]any); ok {
		for name, value := range custom {
			draft.setHeader(name, fmt.Sprint(value))
		}
	}
	return nil
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

// NewAuthenticator builds the authenticator for an auth spec. A nil spec or
// AuthNone yields the noop variant.
func NewAuthenticator(spec *AuthSpec, source CredentialSource, signer OAuth1Signer) (Authenticator, error) {
	if spec == nil || spec.Kind == "" || spec.Kind == AuthNone {
		return NoopAuthenticator{}, nil
	}

	switch spec.Kind {
	case AuthBasic:
		return &basicAuthenticator{username: spec.Username, password: spec.Password}, nil
	case AuthBearer:
		return &bearerAuthenticator{token: spec.Token}, nil
	case AuthHeader:
		return &headerAuthenticator{name: spec.Name, value: spec.Value}, nil
	case AuthQuery:
		return &queryAuthenticator{name: spec.Name, value: spec.Value}, nil
	case AuthCustom:
		return &customAuthenticator{headers: spec.Headers, query: spec.Query, body: spec.Body}, nil
	case AuthPredefined:
		return &predefinedAuthenticator{
			credentialType: spec.CredentialType,
			source:         source,
			signer:         signer,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported authentication kind: %s", spec.Kind)
	}
}

// OAuth2ClientSource is a CredentialSource backed by the OAuth2 client
// credentials flow. Tokens are cached and refreshed only when expired.
type OAuth2ClientSource struct {
	conf  *clientcredentials.Config
	mu    sync.Mutex
	token *oauth2.Token
}

func NewOAuth2ClientSource(tokenURL, clientID, clientSecret string, scopes []string) *OAuth2ClientSource {
	return &OAuth2ClientSource{
		conf: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		},
	}
}

// Credentials returns a record shaped like the host's OAuth2 credentials so
// the predefined authenticator maps it onto a Bearer header.
func (s *OAuth2ClientSource) Credentials(string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil || !s.token.Valid() {
		token, err := s.conf.Token(context.Background())
		if err != nil {
			return nil, fmt.Errorf("could not fetch oauth token: %w", err)
		}
		s.token = token
	}
	return map[string]any{"access_token": s.token.AccessToken}, nil
}
