package doh

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// NewClient returns an HTTP client suitable for DoH queries, with no
// shared state with other clients.
func NewClient() *http.Client {
	return cleanhttp.DefaultClient()
}

// NewRetryClient returns an HTTP client that retries transient HTTP
// failures up to retryMax times before giving up.
func NewRetryClient(retryMax int) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = cleanhttp.DefaultClient()
	retryClient.RetryMax = retryMax
	retryClient.Logger = nil
	return retryClient.StandardClient()
}

// NewBootstrapClient returns an HTTP client that resolves DoH server
// hostnames using the given classic DNS resolver instead of the system
// resolver, avoiding a circular dependency on the resolver being
// configured.
func NewBootstrapClient(resolverNetwork, resolverAddress string) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Resolver: &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				if runtime.GOOS == "windows" {
					return nil, fmt.Errorf("doh: custom resolver is not supported on windows: https://golang.org/pkg/net/#hdr-Name_Resolution")
				}
				d := net.Dialer{
					Timeout: 30 * time.Second,
				}
				return d.DialContext(ctx, resolverNetwork, resolverAddress)
			},
		},
	}

	transport := cleanhttp.DefaultTransport()
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}
