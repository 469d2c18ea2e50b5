// Package httpclient builds the http.Clients that talk to a Concourse server.
//
// Builder combines bearer token injection through an oauth2client.TokenManager with
// proxy routing, TLS settings (custom CA bundle, client certificate, insecure for
// development), timeouts, redirect handling and Prometheus request metrics.
// OAuth2Transport can also wrap any RoundTripper directly.
//
//	client, err := httpclient.NewBuilder().
//	    WithTokenManager(tm).
//	    WithCACertPEM(caBundle).
//	    WithProxy(proxyURL).
//	    WithoutRedirects().
//	    Build()
//
// The token exchange itself must use a client built without WithTokenManager, or
// it would try to authenticate itself.
package httpclient
