package concourse

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"unicode/utf8"

	"github.com/paroxp/concourse-go-sdk/oauth2client"
)

// AuthError reports that the token exchange failed, either because the credentials
// were rejected or because the identity provider could not be reached. The token
// stays unset, so the next call tries again.
type AuthError = oauth2client.AuthError

// HTTPError is returned for responses with a status above 400.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	// Body is the unparsed response body, kept for inspection.
	Body []byte
}

const maxErrorBody = 256

func (e *HTTPError) Error() string {
	body := truncate(e.Body, maxErrorBody)
	if body == "" {
		return fmt.Sprintf("concourse: %s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("concourse: %s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), body)
}

// truncate cuts b to at most n bytes without splitting a UTF-8 sequence.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut]) + "..."
}

// IsNotFound reports whether the server answered 404.
func (e *HTTPError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsUnauthorized reports whether the server answered 401, e.g. for an expired token.
func (e *HTTPError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// IsForbidden reports whether the server answered 403.
func (e *HTTPError) IsForbidden() bool { return e.StatusCode == http.StatusForbidden }

// IsConflict reports whether the server answered 409, e.g. for a stale config version.
func (e *HTTPError) IsConflict() bool { return e.StatusCode == http.StatusConflict }

// NetworkError is returned when no response was received: DNS failure, refused
// connection, TLS failure, timeout or cancellation.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("concourse: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout.
func (e *NetworkError) Timeout() bool {
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsNotFound reports whether err is an *HTTPError with status 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.IsNotFound()
}

// IsConflict reports whether err is an *HTTPError with status 409.
func IsConflict(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.IsConflict()
}
