// Package oauth2client provides a token manager for the Concourse resource-owner-password grant.
//
// A TokenManager exchanges a username and password for a bearer token at the server's
// /sky/issuer/token endpoint, using the public "fly" client, and caches it for the life
// of the manager. Concurrent callers that find the cache empty share a single exchange.
// A failed exchange is not cached, so the next call tries again. Tokens are not refreshed.
//
// # Features
//
//   - Password grant with the fly client credentials and scopes
//   - At most one exchange in flight, shared by every waiting caller
//   - Context-aware token fetching; a caller that gives up does not abort the exchange for others
//   - Typed AuthError carrying the identity provider's status code
//   - Unverified id_token claims for display (IDTokenClaims)
//   - Optional logging through logr (WithLogger, WithLoggingEnabled)
//
// # Quick Start
//
//	tm := oauth2client.NewTokenManager(
//	    ctx,
//	    "https://ci.example.com",
//	    oauth2client.Credentials{Username: "admin", Password: "secret"},
//	    oauth2client.WithLoggingEnabled(),
//	)
//
//	client := http.Client{Transport: httpclient.NewOAuth2Transport(tm, nil)}
//
// # Notes
//
//   - GetTokenWithContext is preferred; GetToken uses a background context.
//   - TokenManager is safe for concurrent use.
package oauth2client
