package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// TokenPath is the Concourse (dex) token endpoint, relative to the API endpoint.
	TokenPath = "/sky/issuer/token"

	// FlyClientID and FlyClientSecret identify the public client that fly itself uses.
	// The server knows this pair; it is not a user secret.
	FlyClientID     = "fly"
	FlyClientSecret = "Zmx5" //nolint:gosec // public client identity, not a credential

	tokenFlightKey = "token"
)

// DefaultScopes are the OAuth2 scopes requested for every token exchange.
var DefaultScopes = []string{"openid", "profile", "email", "federated:id", "groups"}

// Credentials are the user-supplied half of the resource-owner-password grant.
type Credentials struct {
	Username string
	Password string
}

// TokenManager acquires a bearer token with the resource-owner-password grant and
// caches it for its own lifetime. The token is never refreshed.
// It is safe for concurrent access; concurrent callers share a single in-flight exchange.
type TokenManager struct {
	config     *oauth2.Config
	creds      Credentials
	httpClient *http.Client
	ctx        context.Context // fallback context for GetToken
	logger     logr.Logger

	mu    sync.RWMutex
	token *oauth2.Token
	group singleflight.Group
}

// Option is a functional option for configuring TokenManager.
type Option func(*TokenManager)

// WithLogger sets a logger for token acquisition events.
// If not set, no logging will occur.
func WithLogger(logger logr.Logger) Option {
	return func(tm *TokenManager) {
		tm.logger = logger
	}
}

// WithLoggingEnabled enables logging through the standard library's default logger.
func WithLoggingEnabled() Option {
	return func(tm *TokenManager) {
		tm.logger = stdr.New(log.Default())
	}
}

// WithHTTPClient sets the HTTP client used for the token exchange.
// The client must not inject bearer tokens itself.
func WithHTTPClient(client *http.Client) Option {
	return func(tm *TokenManager) {
		tm.httpClient = client
	}
}

// WithScopes overrides DefaultScopes.
func WithScopes(scopes ...string) Option {
	return func(tm *TokenManager) {
		tm.config.Scopes = scopes
	}
}

// WithClientCredentials overrides the fly client identity.
func WithClientCredentials(clientID, clientSecret string) Option {
	return func(tm *TokenManager) {
		tm.config.ClientID = clientID
		tm.config.ClientSecret = clientSecret
	}
}

// NewTokenManager creates a token manager for the Concourse server at endpoint.
//
// Parameters:
//   - ctx: Fallback context for GetToken; an oauth2.HTTPClient value in it is used for the exchange
//   - endpoint: Concourse API endpoint (e.g., "https://ci.example.com")
//   - creds: Username and password of a local or federated Concourse user
//   - opts: Optional configuration options (WithLogger, WithHTTPClient, WithScopes, ...)
func NewTokenManager(ctx context.Context, endpoint string, creds Credentials, opts ...Option) *TokenManager {
	// Keep token requests independent from caller cancellations while preserving values.
	if ctx == nil {
		ctx = context.Background()
	} else {
		ctx = context.WithoutCancel(ctx)
	}

	tm := &TokenManager{
		config: &oauth2.Config{
			ClientID:     FlyClientID,
			ClientSecret: FlyClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimSuffix(endpoint, "/") + TokenPath,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			Scopes: append([]string(nil), DefaultScopes...),
		},
		creds:  creds,
		ctx:    ctx,
		logger: logr.Discard(),
	}

	for _, opt := range opts {
		opt(tm)
	}

	if tm.httpClient == nil {
		if client, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
			tm.httpClient = client
		}
	}

	return tm
}

// TokenURL returns the token endpoint the manager exchanges credentials against.
func (tm *TokenManager) TokenURL() string {
	return tm.config.Endpoint.TokenURL
}

// Authenticate performs one resource-owner-password exchange and returns the token.
// It neither reads nor writes the cache.
func (tm *TokenManager) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tm.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, tm.httpClient)
	}

	token, err := tm.config.PasswordCredentialsToken(ctx, tm.creds.Username, tm.creds.Password)
	if err != nil {
		authErr := &AuthError{Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			authErr.StatusCode = retrieveErr.Response.StatusCode
		}
		tm.logger.Error(err, "token exchange failed", "tokenURL", tm.TokenURL(), "statusCode", authErr.StatusCode)
		return nil, authErr
	}

	if token.AccessToken == "" {
		return nil, &AuthError{Err: errors.New("server returned an empty access token")}
	}

	tm.logger.V(1).Info("obtained access token", "tokenURL", tm.TokenURL(), "username", tm.creds.Username)

	return token, nil
}

// GetTokenWithContext returns the cached access token, acquiring it on first use.
//
// Concurrent callers that find the cache empty wait on the same exchange. The exchange
// itself runs detached from ctx so that one caller giving up does not fail the others;
// ctx still bounds how long this caller waits. A failed exchange is not cached.
//
// Returns:
//   - string: Access token
//   - error: *AuthError if the exchange fails, or ctx's error if the wait is abandoned
func (tm *TokenManager) GetTokenWithContext(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Fast path: cached token without write lock
	tm.mu.RLock()
	if tm.token != nil {
		token := tm.token.AccessToken
		tm.mu.RUnlock()
		return token, nil
	}
	tm.mu.RUnlock()

	flight := tm.group.DoChan(tokenFlightKey, func() (any, error) {
		// A previous flight may have finished between the read above and this call.
		tm.mu.RLock()
		cached := tm.token
		tm.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		token, err := tm.Authenticate(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		tm.mu.Lock()
		tm.token = token
		tm.mu.Unlock()

		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("oauth2: waiting for token: %w", ctx.Err())
	case result := <-flight:
		if result.Err != nil {
			return "", result.Err
		}
		return result.Val.(*oauth2.Token).AccessToken, nil
	}
}

// GetToken returns the cached access token, acquiring it on first use with the
// fallback context given to NewTokenManager.
func (tm *TokenManager) GetToken() (string, error) {
	return tm.GetTokenWithContext(tm.ctx)
}

// Token returns the cached token, if any.
func (tm *TokenManager) Token() (*oauth2.Token, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.token, tm.token != nil
}
