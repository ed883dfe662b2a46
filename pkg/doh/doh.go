// Package doh provides a DNS-over-HTTPS (DoH) client and server
// implementation following [RFC8484], targeting servers described by
// [dohconf.Server] values.
//
// [RFC8484]: https://tools.ietf.org/html/rfc8484
package doh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/miekg/dns"
	"github.com/picatz/dohconf/pkg/dohconf"
)

// KnownServer is a known DoH server URI template.
type KnownServer = string

var (
	Google     KnownServer = "https://dns.google/dns-query{?dns}"
	Cloudflare KnownServer = "https://cloudflare-dns.com/dns-query{?dns}"
	Quad9      KnownServer = "https://dns.quad9.net/dns-query{?dns}"
)

// Query performs a DNS query against a DoH server. The HTTP method follows
// the server's configuration: GET with the packed query bound to the
// template's "dns" variable, or POST with the query in the request body
// when the template carries no "dns" variable ([RFC8484] section 4.1).
//
// [RFC8484]: https://tools.ietf.org/html/rfc8484
func Query(ctx context.Context, httpClient *http.Client, server dohconf.Server, dnsReq dns.Msg) (*dns.Msg, error) {
	dnsReqBytes, err := dnsReq.Pack()
	if err != nil {
		return nil, fmt.Errorf("doh: error packing DNS request: %w", err)
	}

	var httpReq *http.Request

	if server.UsePost() {
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, server.URLForQuery(nil), bytes.NewReader(dnsReqBytes))
		if err != nil {
			return nil, fmt.Errorf("doh: error creating HTTP request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/dns-message")
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, server.URLForQuery(dnsReqBytes), nil)
		if err != nil {
			return nil, fmt.Errorf("doh: error creating HTTP request: %w", err)
		}
	}

	httpReq.Header.Set("Accept", "application/dns-message")

	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("doh: error performing HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh: %q HTTP request returned status code: %d (%s)", server.Template(), httpResp.StatusCode, http.StatusText(httpResp.StatusCode))
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("doh: error reading HTTP response body: %w", err)
	}

	dnsResp := &dns.Msg{}
	err = dnsResp.Unpack(body)
	if err != nil {
		return nil, fmt.Errorf("doh: error unpacking DNS response: %w", err)
	}

	return dnsResp, nil
}
