package concourse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/paroxp/concourse-go-sdk/httpclient"
	"github.com/paroxp/concourse-go-sdk/oauth2client"
)

// DefaultTimeout bounds every buffered API call, and the wait for the first
// response headers of a stream.
const DefaultTimeout = httpclient.DefaultTimeout

// ConfigVersionHeader carries the pipeline config version used for optimistic
// concurrency on config writes.
const ConfigVersionHeader = "X-Concourse-Config-Version"

// Config configures a Client. It is copied by New and not read again.
type Config struct {
	// APIEndpoint is the Concourse URL, e.g. "https://ci.example.com".
	APIEndpoint string
	Username    string
	Password    string

	// Proxy routes all traffic, including the token exchange, through a proxy.
	// User info in the URL becomes proxy basic auth. Nil means the environment's
	// HTTP_PROXY/HTTPS_PROXY/NO_PROXY settings.
	Proxy *url.URL

	// CACertPEM, if set, is the only CA bundle trusted for the API endpoint.
	CACertPEM          []byte
	InsecureSkipVerify bool

	// ClientCertFile and ClientKeyFile name a PEM certificate and key presented
	// to servers that require mutual TLS. Both or neither must be set.
	ClientCertFile string
	ClientKeyFile  string

	// Timeout overrides DefaultTimeout.
	Timeout time.Duration

	// Transport replaces the base transport. Proxy and TLS settings are not applied to it.
	Transport http.RoundTripper

	// Logger receives debug output. Tokens and passwords are never logged.
	Logger logr.Logger

	// Registerer, if set, receives request metrics.
	Registerer prometheus.Registerer
}

// Client talks to one Concourse server as one user. The bearer token is
// acquired on the first call and reused for the life of the Client.
// A Client is safe for concurrent use.
type Client struct {
	endpoint     string
	tokenManager *oauth2client.TokenManager
	httpClient   *http.Client
	streamClient *http.Client
	timeout      time.Duration
	logger       logr.Logger
}

// RequestOptions are the optional parts of a Send or Stream call.
type RequestOptions struct {
	// Body is JSON-encoded unless it is a []byte or json.RawMessage, which are sent as is.
	Body any

	// Header is merged over the defaults key by key; a key set here replaces the
	// default value for that key. Authorization is always the bearer token.
	Header http.Header

	Query url.Values
}

// Response is a buffered API response with a status in the accepted range 1..400.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v. An empty or null body leaves v untouched.
func (r *Response) Decode(v any) error {
	trimmed := bytes.TrimSpace(r.Body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("concourse: decode response: %w", err)
	}
	return nil
}

// New creates a Client. No network traffic happens until the first call.
func New(cfg Config) (*Client, error) {
	endpoint, err := normalizeEndpoint(cfg.APIEndpoint)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	newBuilder := func() *httpclient.Builder {
		b := httpclient.NewBuilder().WithTimeout(timeout)
		if cfg.Transport != nil {
			b.WithBaseTransport(cfg.Transport)
		}
		if cfg.Proxy != nil {
			b.WithProxy(cfg.Proxy)
		}
		if len(cfg.CACertPEM) > 0 {
			b.WithCACertPEM(cfg.CACertPEM)
		}
		if cfg.InsecureSkipVerify {
			b.WithInsecureSkipVerify()
		}
		if cfg.ClientCertFile != "" || cfg.ClientKeyFile != "" {
			b.WithClientCertificate(cfg.ClientCertFile, cfg.ClientKeyFile)
		}
		return b
	}

	exchangeClient, err := newBuilder().Build()
	if err != nil {
		return nil, fmt.Errorf("concourse: %w", err)
	}

	tm := oauth2client.NewTokenManager(context.Background(), endpoint,
		oauth2client.Credentials{Username: cfg.Username, Password: cfg.Password},
		oauth2client.WithHTTPClient(exchangeClient),
		oauth2client.WithLogger(logger.WithName("oauth2")),
	)

	// A 3xx goes back to the caller. Following it would send the bearer token
	// to whatever host the Location names.
	apiBuilder := newBuilder().WithTokenManager(tm).WithoutRedirects()
	if cfg.Registerer != nil {
		apiBuilder.WithMetrics(cfg.Registerer)
	}
	httpClient, err := apiBuilder.Build()
	if err != nil {
		return nil, fmt.Errorf("concourse: %w", err)
	}

	return &Client{
		endpoint:     endpoint,
		tokenManager: tm,
		httpClient:   httpClient,
		// Streams stay open for as long as the caller reads them.
		streamClient: &http.Client{
			Transport:     httpClient.Transport,
			CheckRedirect: httpClient.CheckRedirect,
		},
		timeout: timeout,
		logger:  logger,
	}, nil
}

// APIEndpoint returns the normalized endpoint the client talks to.
func (c *Client) APIEndpoint() string {
	return c.endpoint
}

// TokenManager exposes the client's token cache, e.g. to read the user's claims.
func (c *Client) TokenManager() *oauth2client.TokenManager {
	return c.tokenManager
}

// Send performs an authenticated request and buffers the response.
//
// Any status from 1 through 400 is returned as a Response; 3xx and 400 are the
// caller's to interpret. Statuses above 400 return *HTTPError. Transport failures
// return *NetworkError and a failed token exchange returns *AuthError.
func (c *Client) Send(ctx context.Context, method, path string, opts *RequestOptions) (*Response, error) {
	req, err := c.newRequest(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(method, req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: method, URL: redactURL(req.URL), Err: err}
	}

	c.logger.V(1).Info("request completed",
		"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if !statusAccepted(resp.StatusCode) {
		return nil, &HTTPError{
			Method:     method,
			URL:        redactURL(req.URL),
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Stream performs an authenticated request and hands back the live response body
// without buffering it. The timeout covers only the wait for response headers.
// The caller must Close the returned stream.
func (c *Client) Stream(ctx context.Context, method, path string, opts *RequestOptions) (*EventStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := c.newRequest(streamCtx, method, path, opts)
	if err != nil {
		cancel()
		return nil, err
	}
	if !hasHeader(opts, "Accept") {
		req.Header.Set("Accept", "text/event-stream")
	}

	headerTimer := time.AfterFunc(c.timeout, cancel)
	resp, err := c.streamClient.Do(req)
	if !headerTimer.Stop() {
		// The header deadline fired, so the request context is already cancelled.
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, &NetworkError{
			Op:  method,
			URL: redactURL(req.URL),
			Err: fmt.Errorf("no response headers within %s: %w", c.timeout, context.DeadlineExceeded),
		}
	}
	if err != nil {
		cancel()
		return nil, classifyTransportError(method, req.URL, err)
	}

	if !statusAccepted(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		cancel()
		return nil, &HTTPError{
			Method:     method,
			URL:        redactURL(req.URL),
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	c.logger.V(1).Info("stream opened", "method", method, "path", path, "status", resp.StatusCode)

	return newEventStream(resp, cancel), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, opts *RequestOptions) (*http.Request, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	target := c.endpoint + "/" + strings.TrimPrefix(path, "/")
	if len(opts.Query) > 0 {
		target += "?" + opts.Query.Encode()
	}

	var body io.Reader
	switch b := opts.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	case json.RawMessage:
		body = bytes.NewReader(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("concourse: encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("concourse: build request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range opts.Header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	return req, nil
}

// classifyTransportError turns a failed http.Client.Do into the error taxonomy.
func classifyTransportError(method string, u *url.URL, err error) error {
	var authErr *oauth2client.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return &NetworkError{Op: method, URL: redactURL(u), Err: err}
}

func statusAccepted(status int) bool {
	return status >= 1 && status <= http.StatusBadRequest
}

func hasHeader(opts *RequestOptions, key string) bool {
	return opts != nil && opts.Header != nil && opts.Header.Get(key) != ""
}

func normalizeEndpoint(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("concourse: APIEndpoint is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("concourse: invalid APIEndpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("concourse: APIEndpoint %q must use http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("concourse: APIEndpoint %q has no host", raw)
	}

	return strings.TrimSuffix(u.String(), "/"), nil
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}
