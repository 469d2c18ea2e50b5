package oauth2client

import (
	"fmt"
	"net/http"
)

// AuthError reports a failed token exchange: the identity provider rejected the
// credentials, or it could not be reached.
type AuthError struct {
	// StatusCode is the token endpoint's HTTP status, or 0 if no response was received.
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("oauth2: failed to fetch token (%d %s): %v", e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	}
	return fmt.Sprintf("oauth2: failed to fetch token: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Rejected reports whether the identity provider answered and refused the credentials.
func (e *AuthError) Rejected() bool {
	return e.StatusCode >= http.StatusBadRequest && e.StatusCode < http.StatusInternalServerError
}
