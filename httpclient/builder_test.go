package httpclient

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paroxp/concourse-go-sdk/oauth2client"
	"github.com/paroxp/concourse-go-sdk/testutil"
)

// transportOf unwraps the *http.Transport a builder produced without a token manager.
func transportOf(t *testing.T, client *http.Client) *http.Transport {
	t.Helper()

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok, "expected *http.Transport, got %T", client.Transport)
	return transport
}

func TestBuilder_Defaults(t *testing.T) {
	client, err := NewBuilder().Build()
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeout, client.Timeout)
	assert.Nil(t, client.CheckRedirect, "redirects follow Go's default policy")

	tlsConfig := transportOf(t, client).TLSClientConfig
	require.NotNil(t, tlsConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)
	assert.False(t, tlsConfig.InsecureSkipVerify)
	assert.Nil(t, tlsConfig.RootCAs, "system roots")
	assert.Empty(t, tlsConfig.Certificates)
}

func TestBuilder_Build_Options(t *testing.T) {
	proxyURL, err := url.Parse("http://proxy.example.com:3128")
	require.NoError(t, err)

	client, err := NewBuilder().
		WithTimeout(5 * time.Second).
		WithProxy(proxyURL).
		WithInsecureSkipVerify().
		Build()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.Timeout)

	transport := transportOf(t, client)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)

	req, err := http.NewRequest(http.MethodGet, "https://ci.example.com/api/v1/info", nil)
	require.NoError(t, err)
	got, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, proxyURL.String(), got.String())
}

func TestBuilder_Build_WithoutRedirects(t *testing.T) {
	target := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("the redirect target must not be contacted")
	}))
	t.Cleanup(target.Close)

	origin := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/elsewhere", http.StatusFound)
	}))
	t.Cleanup(origin.Close)

	client, err := NewBuilder().WithoutRedirects().Build()
	require.NoError(t, err)

	resp, err := client.Get(origin.URL + "/api/v1/info")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, target.URL+"/elsewhere", resp.Header.Get("Location"))
}

func TestBuilder_Build_WithBaseTransport(t *testing.T) {
	tm, _ := newTestTokenManager(t)

	var auth string
	base := testutil.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		return okResponse("{}")(req)
	})

	plain, err := NewBuilder().WithBaseTransport(base).Build()
	require.NoError(t, err)
	assert.NotNil(t, plain.Transport)

	client, err := NewBuilder().WithBaseTransport(base).WithTokenManager(tm).Build()
	require.NoError(t, err)

	oauthTransport, ok := client.Transport.(*OAuth2Transport)
	require.True(t, ok, "expected *OAuth2Transport, got %T", client.Transport)
	assert.Same(t, tm, oauthTransport.TokenManager)

	resp, err := client.Get("https://ci.example.com/api/v1/teams")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer mock-access-token", auth)
}

func TestBuilder_Build_StubbedDefaultTransport(t *testing.T) {
	prev := http.DefaultTransport
	stub := okResponse("stub")
	http.DefaultTransport = stub
	t.Cleanup(func() { http.DefaultTransport = prev })

	client, err := NewBuilder().WithInsecureSkipVerify().Build()
	require.NoError(t, err)

	resp, err := client.Get("https://ci.example.com/api/v1/info")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "stub", string(body), "TLS options cannot apply to a non-*http.Transport default")
}

func TestBuilder_Build_ProxyCarriesTokenExchange(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)

	// A plain-HTTP forward proxy receives absolute-form request URIs.
	proxy := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Host+r.URL.Path)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == oauth2client.TokenPath {
			_, _ = io.WriteString(w, `{"access_token":"proxied-token","token_type":"bearer"}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer proxied-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"version":"7.11.0"}`)
	}))
	t.Cleanup(proxy.Close)
	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)

	exchange, err := NewBuilder().WithProxy(proxyURL).Build()
	require.NoError(t, err)
	tm := oauth2client.NewTokenManager(context.Background(), "http://ci.invalid", testCreds,
		oauth2client.WithHTTPClient(exchange))

	client, err := NewBuilder().WithProxy(proxyURL).WithTokenManager(tm).Build()
	require.NoError(t, err)

	resp, err := client.Get("http://ci.invalid/api/v1/info")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ci.invalid" + oauth2client.TokenPath, "ci.invalid/api/v1/info"}, paths)
}

func TestBuilder_Build_WithMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	client, err := NewBuilder().WithBaseTransport(okResponse("ok")).WithMetrics(reg).Build()
	require.NoError(t, err)

	// A second client on the same registry shares the collectors.
	_, err = NewBuilder().WithBaseTransport(okResponse("ok")).WithMetrics(reg).Build()
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := client.Get("https://ci.example.com/api/v1/info")
		require.NoError(t, err)
		resp.Body.Close()
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	var count float64
	for _, family := range families {
		if family.GetName() != "concourse_client_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			count += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), count)
}

func TestBuilder_BuildTLSConfig(t *testing.T) {
	dir := t.TempDir()
	caFile := filepath.Join(dir, "ca.crt")
	certFile := filepath.Join(dir, "client.crt")
	keyFile := filepath.Join(dir, "client.key")
	garbage := filepath.Join(dir, "garbage.pem")

	testutil.WriteTestCACert(t, caFile)
	testutil.WriteTestCertAndKey(t, certFile, keyFile)
	require.NoError(t, os.WriteFile(garbage, []byte("not pem"), 0o600))

	caPEM, err := os.ReadFile(caFile)
	require.NoError(t, err)

	tests := []struct {
		name      string
		builder   *Builder
		wantErr   string
		wantRoots bool
		wantCerts int
	}{
		{
			name:      "CA bundle",
			builder:   NewBuilder().WithCACertPEM(caPEM),
			wantRoots: true,
		},
		{
			name:    "CA bundle without certificates",
			builder: NewBuilder().WithCACertPEM([]byte("not pem")),
			wantErr: "no certificates found in CA bundle",
		},
		{
			name:      "client certificate",
			builder:   NewBuilder().WithClientCertificate(certFile, keyFile),
			wantCerts: 1,
		},
		{
			name:      "client certificate with CA bundle",
			builder:   NewBuilder().WithCACertPEM(caPEM).WithClientCertificate(certFile, keyFile),
			wantRoots: true,
			wantCerts: 1,
		},
		{
			name:    "cert without key",
			builder: NewBuilder().WithClientCertificate(certFile, ""),
			wantErr: "needs both a cert and a key file",
		},
		{
			name:    "key without cert",
			builder: NewBuilder().WithClientCertificate("", keyFile),
			wantErr: "needs both a cert and a key file",
		},
		{
			name:    "unreadable key pair",
			builder: NewBuilder().WithClientCertificate(garbage, garbage),
			wantErr: "load client certificate",
		},
		{
			name:    "missing key file",
			builder: NewBuilder().WithClientCertificate(certFile, filepath.Join(dir, "missing.key")),
			wantErr: "load client certificate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := tt.builder.Build()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), "TLS config failed")
				return
			}
			require.NoError(t, err)

			tlsConfig := transportOf(t, client).TLSClientConfig
			assert.Equal(t, tt.wantRoots, tlsConfig.RootCAs != nil)
			assert.Len(t, tlsConfig.Certificates, tt.wantCerts)
		})
	}
}

func TestBuilder_Build_ClientCertificatePresented(t *testing.T) {
	var (
		mu      sync.Mutex
		subject string
	)
	server := testutil.NewLocalMutualTLSServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		subject = r.TLS.PeerCertificates[0].Subject.CommonName
		mu.Unlock()
		_, _ = io.WriteString(w, `{"version":"7.11.0"}`)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "client.crt")
	keyFile := filepath.Join(dir, "client.key")
	testutil.WriteTestCertAndKey(t, certFile, keyFile)

	without, err := NewBuilder().WithInsecureSkipVerify().Build()
	require.NoError(t, err)
	_, err = without.Get(server.URL + "/api/v1/info")
	require.Error(t, err, "the handshake fails without a client certificate")

	with, err := NewBuilder().WithInsecureSkipVerify().WithClientCertificate(certFile, keyFile).Build()
	require.NoError(t, err)
	resp, err := with.Get(server.URL + "/api/v1/info")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "test-cert", subject)
}

func BenchmarkBuilder_Build(b *testing.B) {
	tm, _ := newTestTokenManager(b)
	builder := NewBuilder().WithTokenManager(tm).WithoutRedirects()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := builder.Build(); err != nil {
			b.Fatal(err)
		}
	}
}
