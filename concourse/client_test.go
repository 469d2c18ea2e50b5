package concourse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paroxp/concourse-go-sdk/oauth2client"
	"github.com/paroxp/concourse-go-sdk/testutil"
)

func newTestClient(t *testing.T, fake *testutil.FakeConcourse, mutate ...func(*Config)) *Client {
	t.Helper()

	cfg := Config{
		APIEndpoint: fake.URL,
		Username:    "test",
		Password:    "test",
	}
	for _, m := range mutate {
		m(&cfg)
	}

	client, err := New(cfg)
	require.NoError(t, err)
	return client
}

// newStubServer serves mux behind a token endpoint that always succeeds with
// the token "stub-token".
func newStubServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()

	mux.HandleFunc("POST /sky/issuer/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"stub-token","token_type":"bearer"}`)
	})
	server := testutil.NewLocalHTTPServer(t, mux)
	t.Cleanup(func() {
		server.CloseClientConnections()
		server.Close()
	})

	client, err := New(Config{APIEndpoint: server.URL, Username: "u", Password: "p"})
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		endpoint     string
		wantEndpoint string
		wantErr      string
	}{
		{
			name:         "plain",
			endpoint:     "https://ci.example.com",
			wantEndpoint: "https://ci.example.com",
		},
		{
			name:         "trailing slash trimmed",
			endpoint:     "http://localhost:8080/",
			wantEndpoint: "http://localhost:8080",
		},
		{
			name:         "sub path kept",
			endpoint:     "https://example.com/concourse/",
			wantEndpoint: "https://example.com/concourse",
		},
		{
			name:    "empty",
			wantErr: "APIEndpoint is required",
		},
		{
			name:     "no scheme",
			endpoint: "ci.example.com",
			wantErr:  "must use http or https",
		},
		{
			name:     "unsupported scheme",
			endpoint: "ftp://ci.example.com",
			wantErr:  "must use http or https",
		},
		{
			name:     "no host",
			endpoint: "https://",
			wantErr:  "has no host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(Config{APIEndpoint: tt.endpoint, Username: "u", Password: "p"})
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEndpoint, client.APIEndpoint())
			assert.Equal(t, tt.wantEndpoint+oauth2client.TokenPath, client.TokenManager().TokenURL())
		})
	}
}

func TestNew_DoesNotAuthenticate(t *testing.T) {
	fake := testutil.NewFakeConcourse(t)
	newTestClient(t, fake)

	assert.Equal(t, 0, fake.TokenRequests())
}

func TestClient_AuthenticatesOnce(t *testing.T) {
	fake := testutil.NewFakeConcourse(t)
	client := newTestClient(t, fake)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.GetInfo(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, fake.TokenRequests())
	assert.Equal(t, "openid profile email federated:id groups", fake.LastScope())

	requests := fake.Requests()
	require.Len(t, requests, 5)
	for _, req := range requests {
		assert.Equal(t, "Bearer fake-access-token", req.Header.Get("Authorization"))
	}
}

func TestClient_ConcurrentFirstCallsShareOneLogin(t *testing.T) {
	fake := testutil.NewFakeConcourse(t)
	client := newTestClient(t, fake)
	release := fake.HoldTokenRequests()
	defer release()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.GetInfo(context.Background())
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return fake.TokenRequests() == 1 }, 5*time.Second, 10*time.Millisecond)
	// Let the other callers pile up behind the held exchange.
	time.Sleep(50 * time.Millisecond)
	release()

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, fake.TokenRequests())
	assert.Len(t, fake.Requests(), callers)
}

func TestClient_AuthFailure(t *testing.T) {
	fake := testutil.NewFakeConcourse(t)
	client := newTestClient(t, fake, func(cfg *Config) { cfg.Password = "wrong" })
	ctx := context.Background()

	_, err := client.GetInfo(ctx)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.True(t, authErr.Rejected())

	var netErr *NetworkError
	assert.False(t, errors.As(err, &netErr), "an auth failure is not a network error")

	// Not cached: the next call tries again.
	_, err = client.GetInfo(ctx)
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 2, fake.TokenRequests())
	assert.Empty(t, fake.Requests())
}

func TestClient_AuthFailureNotCached(t *testing.T) {
	var tokenCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sky/issuer/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if tokenCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":"temporarily_unavailable"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"second","token_type":"bearer"}`)
	})
	mux.HandleFunc("GET /api/v1/info", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer second" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"version":"7.11.2"}`)
	})
	server := testutil.NewLocalHTTPServer(t, mux)
	t.Cleanup(server.Close)

	client, err := New(Config{APIEndpoint: server.URL, Username: "u", Password: "p"})
	require.NoError(t, err)

	_, err = client.GetInfo(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, authErr.Rejected())

	info, err := client.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7.11.2", info.Version)
	assert.EqualValues(t, 2, tokenCalls.Load())
}

func TestClient_TokenNotInvalidatedByErrors(t *testing.T) {
	fake := testutil.NewFakeConcourse(t)
	client := newTestClient(t, fake)
	ctx := context.Background()

	_, err := client.GetTeam(ctx, TeamRef{Name: "missing"})
	require.True(t, IsNotFound(err))

	_, err = client.GetTeam(ctx, TeamRef{Name: "main"})
	require.NoError(t, err)

	assert.Equal(t, 1, fake.TokenRequests())
}

func TestSend_StatusClassification(t *testing.T) {
	fake := testutil.NewFakeConcourse(t)
	fake.Handle("GET /status/{code}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code, _ := strconv.Atoi(r.PathValue("code"))
		if code == http.StatusFound {
			w.Header().Set("Location", "/api/v1/info")
		}
		w.WriteHeader(code)
		fmt.Fprintf(w, "status %d", code)
	}))
	client := newTestClient(t, fake)

	tests := []struct {
		code    int
		wantErr bool
	}{
		{code: http.StatusOK},
		{code: http.StatusCreated},
		{code: http.StatusNoContent},
		{code: http.StatusFound}, // returned, not followed
		{code: http.StatusNotModified},
		{code: http.StatusBadRequest},
		{code: http.StatusUnauthorized, wantErr: true},
		{code: http.StatusForbidden, wantErr: true},
		{code: http.StatusNotFound, wantErr: true},
		{code: http.StatusConflict, wantErr: true},
		{code: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.code), func(t *testing.T) {
			resp, err := client.Send(context.Background(), http.MethodGet, "/status/"+strconv.Itoa(tt.code), nil)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.code, resp.StatusCode)
				return
			}

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.code, httpErr.StatusCode)
			assert.Equal(t, http.MethodGet, httpErr.Method)
			assert.Contains(t, string(httpErr.Body), fmt.Sprintf("status %d", tt.code))
			assert.Contains(t, httpErr.Error(), strconv.Itoa(tt.code))
		})
	}
}

func TestSend_RedirectsReturnedToCaller(t *testing.T) {
	var elsewhere struct {
		sync.Mutex
		auth []string
	}
	other := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		elsewhere.Lock()
		elsewhere.auth = append(elsewhere.auth, r.Header.Get("Authorization"))
		elsewhere.Unlock()
		_, _ = io.WriteString(w, "event: end\n")
	}))
	t.Cleanup(other.Close)

	fake := testutil.NewFakeConcourse(t)
	fake.Handle("GET /moved", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, other.URL+"/landed", http.StatusFound)
	}))
	client := newTestClient(t, fake)
	ctx := context.Background()

	resp, err := client.Send(ctx, http.MethodGet, "/moved", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, other.URL+"/landed", resp.Header.Get("Location"))

	stream, err := client.Stream(ctx, http.MethodGet, "/moved", nil)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	elsewhere.Lock()
	defer elsewhere.Unlock()
	assert.Empty(t, elsewhere.auth, "the other host must never be contacted with the token")
}

func TestSend_Headers(t *testing.T) {
	fake := testutil.NewFakeConcourse(t)
	fake.Handle("POST /echo", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	client := newTestClient(t, fake)
	ctx := context.Background()

	_, err := client.Send(ctx, http.MethodPost, "/echo", &RequestOptions{Body: map[string]string{"a": "b"}})
	require.NoError(t, err)

	_, err = client.Send(ctx, http.MethodPost, "echo", &RequestOptions{
		Body: []byte("jobs: []"),
		Header: http.Header{
			"Content-Type":      {"application/x-yaml"},
			"Authorization":     {"Bearer spoofed"},
			ConfigVersionHeader: {"7"},
		},
		Query: url.Values{"check_creds": {"true"}},
	})
	require.NoError(t, err)

	requests := fake.Requests()
	require.Len(t, requests, 2)

	assert.Equal(t, "application/json", requests[0].Header.Get("Content-Type"))
	assert.JSONEq(t, `{"a":"b"}`, string(requests[0].Body))

	assert.Equal(t, "application/x-yaml", requests[1].Header.Get("Content-Type"))
	assert.Equal(t, []string{"application/x-yaml"}, requests[1].Header.Values("Content-Type"))
	assert.Equal(t, "7", requests[1].Header.Get(ConfigVersionHeader))
	assert.Equal(t, "Bearer fake-access-token", requests[1].Header.Get("Authorization"))
	assert.Equal(t, "jobs: []", string(requests[1].Body))
}

func TestSend_Query(t *testing.T) {
	var gotQuery atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/builds", func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		_, _ = io.WriteString(w, "[]")
	})
	client := newStubServer(t, mux)

	_, err := client.Send(context.Background(), http.MethodGet, "/api/v1/builds", &RequestOptions{
		Query: url.Values{"limit": {"5"}, "since": {"10"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "limit=5&since=10", gotQuery.Load())
}

func TestSend_NetworkError(t *testing.T) {
	fake := testutil.NewFakeConcourse(t)
	client := newTestClient(t, fake)

	_, err := client.GetInfo(context.Background())
	require.NoError(t, err)

	fake.CloseClientConnections()
	fake.Close()

	_, err = client.GetInfo(context.Background())
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.MethodGet, netErr.Op)
	assert.Contains(t, netErr.URL, "/api/v1/info")
	assert.False(t, netErr.Timeout())
}

func TestSend_Timeout(t *testing.T) {
	fake := testutil.NewFakeConcourse(t)
	fake.Handle("GET /slow", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	client := newTestClient(t, fake, func(cfg *Config) { cfg.Timeout = 100 * time.Millisecond })

	_, err := client.Send(context.Background(), http.MethodGet, "/slow", nil)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestSend_Proxy(t *testing.T) {
	fake := testutil.NewFakeConcourse(t)
	target, err := url.Parse(fake.URL)
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		proxied []string
	)
	forward := httputil.NewSingleHostReverseProxy(target)
	proxy := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		proxied = append(proxied, r.Method+" "+r.URL.Host+r.URL.Path)
		mu.Unlock()
		forward.ServeHTTP(w, r)
	}))
	t.Cleanup(proxy.Close)
	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)

	client := newTestClient(t, fake, func(cfg *Config) {
		cfg.APIEndpoint = "http://concourse.invalid"
		cfg.Proxy = proxyURL
	})

	info, err := client.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7.11.2", info.Version)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST concourse.invalid/sky/issuer/token",
		"GET concourse.invalid/api/v1/info",
	}, proxied)
}

func TestSend_TLS(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sky/issuer/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tls-token","token_type":"bearer"}`)
	})
	mux.HandleFunc("GET /api/v1/info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"version":"7.11.2"}`)
	})
	server := testutil.NewLocalTLSServer(t, mux)
	t.Cleanup(server.Close)

	t.Run("untrusted", func(t *testing.T) {
		client, err := New(Config{APIEndpoint: server.URL, Username: "u", Password: "p"})
		require.NoError(t, err)

		_, err = client.GetInfo(context.Background())
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr, "the token exchange is the first request to fail")
		assert.Zero(t, authErr.StatusCode)
	})

	t.Run("insecure skip verify", func(t *testing.T) {
		client, err := New(Config{APIEndpoint: server.URL, Username: "u", Password: "p", InsecureSkipVerify: true})
		require.NoError(t, err)

		_, err = client.GetInfo(context.Background())
		require.NoError(t, err)
	})

	t.Run("client certificate", func(t *testing.T) {
		mtls := testutil.NewLocalMutualTLSServer(t, mux)
		t.Cleanup(mtls.Close)

		dir := t.TempDir()
		certFile := filepath.Join(dir, "client.crt")
		keyFile := filepath.Join(dir, "client.key")
		testutil.WriteTestCertAndKey(t, certFile, keyFile)

		without, err := New(Config{APIEndpoint: mtls.URL, Username: "u", Password: "p", InsecureSkipVerify: true})
		require.NoError(t, err)
		_, err = without.GetInfo(context.Background())
		require.Error(t, err, "the server refuses the handshake without a certificate")

		with, err := New(Config{
			APIEndpoint:        mtls.URL,
			Username:           "u",
			Password:           "p",
			InsecureSkipVerify: true,
			ClientCertFile:     certFile,
			ClientKeyFile:      keyFile,
		})
		require.NoError(t, err)
		info, err := with.GetInfo(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "7.11.2", info.Version)
	})

	t.Run("client key missing", func(t *testing.T) {
		_, err := New(Config{APIEndpoint: server.URL, Username: "u", Password: "p", ClientCertFile: "/etc/concourse/client.crt"})
		require.ErrorContains(t, err, "needs both a cert and a key file")
	})
}

func TestSend_Metrics(t *testing.T) {
	fake := testutil.NewFakeConcourse(t)
	reg := prometheus.NewRegistry()
	client := newTestClient(t, fake, func(cfg *Config) { cfg.Registerer = reg })

	for i := 0; i < 3; i++ {
		_, err := client.GetInfo(context.Background())
		require.NoError(t, err)
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "concourse_client_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "code" {
					counts[label.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	// The token exchange is not an API request.
	assert.Equal(t, map[string]float64{"200": 3}, counts)
}

func TestResponse_Decode(t *testing.T) {
	var v struct{ Name string }

	require.NoError(t, (&Response{}).Decode(&v))
	require.NoError(t, (&Response{Body: []byte(" null\n")}).Decode(&v))
	assert.Empty(t, v.Name)

	require.NoError(t, (&Response{Body: []byte(`{"name":"main"}`)}).Decode(&v))
	assert.Equal(t, "main", v.Name)

	assert.ErrorContains(t, (&Response{Body: []byte(`<html>`)}).Decode(&v), "decode response")
}
