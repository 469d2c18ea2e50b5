package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paroxp/concourse-go-sdk/oauth2client"
)

// DefaultTimeout bounds every buffered request made by clients from this package.
const DefaultTimeout = 30 * time.Second

// Builder provides a fluent interface for constructing HTTP clients
// with optional Concourse authentication, proxy routing and TLS/mTLS support.
type Builder struct {
	tokenManager *oauth2client.TokenManager

	// TLS configuration
	caPEM      []byte
	certFile   string
	keyFile    string
	skipVerify bool

	timeout         time.Duration
	proxyURL        *url.URL
	baseTransport   http.RoundTripper
	followRedirects bool
	registerer      prometheus.Registerer
}

// NewBuilder creates a new HTTP client builder.
func NewBuilder() *Builder {
	return &Builder{
		timeout:         DefaultTimeout,
		followRedirects: true,
	}
}

// WithTokenManager sets the token manager used to authenticate every request.
func (b *Builder) WithTokenManager(tm *oauth2client.TokenManager) *Builder {
	b.tokenManager = tm
	return b
}

// WithCACertPEM trusts only the CAs in the PEM-encoded bundle.
func (b *Builder) WithCACertPEM(pemBytes []byte) *Builder {
	b.caPEM = pemBytes
	return b
}

// WithClientCertificate presents the certificate in certFile to servers that ask
// for one. Both files are PEM and are read by Build.
func (b *Builder) WithClientCertificate(certFile, keyFile string) *Builder {
	b.certFile = certFile
	b.keyFile = keyFile
	return b
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only for development servers with throwaway certificates.
func (b *Builder) WithInsecureSkipVerify() *Builder {
	b.skipVerify = true
	return b
}

// WithTimeout sets the request timeout for the HTTP client.
// Zero disables the timeout.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithProxy routes every request through proxyURL. Credentials in the URL's user
// info are sent as proxy basic auth. Without this option the HTTP_PROXY, HTTPS_PROXY
// and NO_PROXY environment variables apply.
func (b *Builder) WithProxy(proxyURL *url.URL) *Builder {
	b.proxyURL = proxyURL
	return b
}

// WithBaseTransport sets a custom base transport.
// Proxy and TLS options are not applied to it.
func (b *Builder) WithBaseTransport(transport http.RoundTripper) *Builder {
	b.baseTransport = transport
	return b
}

// WithoutRedirects hands 3xx responses back to the caller instead of following them.
func (b *Builder) WithoutRedirects() *Builder {
	b.followRedirects = false
	return b
}

// WithMetrics registers request metrics with reg and instruments the client with them.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// Build constructs the HTTP client. It fails when the CA bundle or the client
// certificate cannot be loaded.
func (b *Builder) Build() (*http.Client, error) {
	transport, err := b.buildTransport()
	if err != nil {
		return nil, err
	}

	if b.registerer != nil {
		metrics, err := NewMetrics(b.registerer)
		if err != nil {
			return nil, fmt.Errorf("httpclient: metrics: %w", err)
		}
		transport = metrics.InstrumentRoundTripper(transport)
	}

	if b.tokenManager != nil {
		transport = NewOAuth2Transport(b.tokenManager, transport)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   b.timeout,
	}
	if !b.followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}

func (b *Builder) buildTransport() (http.RoundTripper, error) {
	if b.baseTransport != nil {
		return b.baseTransport, nil
	}

	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		// A test stub replaced the default transport.
		return http.DefaultTransport, nil
	}

	transport := base.Clone()
	if b.proxyURL != nil {
		transport.Proxy = http.ProxyURL(b.proxyURL)
	}

	tlsConfig, err := b.buildTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("httpclient: TLS config failed: %w", err)
	}
	transport.TLSClientConfig = tlsConfig

	return transport, nil
}

func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: b.skipVerify, // #nosec G402
	}

	if len(b.caPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(b.caPEM) {
			return nil, errors.New("no certificates found in CA bundle")
		}
		tlsConfig.RootCAs = pool
	}

	switch {
	case b.certFile != "" && b.keyFile != "":
		cert, err := tls.LoadX509KeyPair(b.certFile, b.keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	case b.certFile != "" || b.keyFile != "":
		return nil, errors.New("a client certificate needs both a cert and a key file")
	}

	return tlsConfig, nil
}
