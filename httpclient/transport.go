package httpclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/paroxp/concourse-go-sdk/oauth2client"
)

// OAuth2Transport sets "Authorization: Bearer <token>" on every request it sends.
// The first request triggers the token exchange; later ones reuse the cached token.
type OAuth2Transport struct {
	// Base sends the authenticated request. Nil means http.DefaultTransport.
	Base http.RoundTripper

	TokenManager *oauth2client.TokenManager
}

// RoundTrip implements http.RoundTripper. The token fetch honors the request's
// context, and the caller's request is never modified.
func (t *OAuth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.TokenManager == nil {
		closeBody(req)
		return nil, errors.New("httpclient: no token manager")
	}

	token, err := t.TokenManager.GetTokenWithContext(req.Context())
	if err != nil {
		closeBody(req)
		return nil, fmt.Errorf("httpclient: failed to get token: %w", err)
	}

	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(authed)
}

// closeBody honors the RoundTripper contract of closing the body on every path.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// NewOAuth2Transport wraps base, or http.DefaultTransport when base is nil.
func NewOAuth2Transport(tm *oauth2client.TokenManager, base http.RoundTripper) *OAuth2Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &OAuth2Transport{Base: base, TokenManager: tm}
}
