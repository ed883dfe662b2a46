package doh_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/miekg/dns"
	"github.com/picatz/dohconf/pkg/doh"
	"github.com/picatz/dohconf/pkg/dohconf"
)

func TestNewServerMux(t *testing.T) {
	mux := doh.NewServerMux(func(w http.ResponseWriter, r *http.Request, req *dns.Msg) (*dns.Msg, error) {
		dnsResp := new(dns.Msg).SetReply(req)

		dnsResp.Answer = []dns.RR{
			&dns.A{
				Hdr: dns.RR_Header{
					Name:   req.Question[0].Name,
					Rrtype: dns.TypeA,
					Class:  dns.ClassINET,
					Ttl:    300,
				},
				A: net.IPv4(8, 8, 8, 8),
			},
		}

		return dnsResp, nil
	})

	checkSuccess := func(t *testing.T, resp *http.Response) {
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("got status code %d, want %d", resp.StatusCode, http.StatusOK)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}

		var dnsResp dns.Msg
		if err := dnsResp.Unpack(b); err != nil {
			t.Fatal(err)
		}

		if len(dnsResp.Answer) == 0 {
			t.Fatal("got no answer for known domain")
		}

		for _, answer := range dnsResp.Answer {
			if answer.Header().Rrtype != dns.TypeA {
				t.Errorf("got rrtype %d, want %d", answer.Header().Rrtype, dns.TypeA)
			}

			if answer.Header().Name != "google.com." {
				t.Errorf("got name %s, want %s", answer.Header().Name, "google.com.")
			}

			if answer.(*dns.A).A.String() != "8.8.8.8" {
				t.Errorf("got ip %s, want %s", answer.(*dns.A).A.String(), "8.8.8.8")
			}
		}
	}

	packedQuestion := func(t *testing.T) []byte {
		dnsReq := testQuestion("google.com")

		b, err := dnsReq.Pack()
		if err != nil {
			t.Fatal(err)
		}

		return b
	}

	tests := []struct {
		name  string
		req   func(t *testing.T) *http.Request
		check func(t *testing.T, resp *http.Response)
	}{
		{
			name: "GET without dns param",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/dns-query", nil)
			},
			check: func(t *testing.T, resp *http.Response) {
				if resp.StatusCode != http.StatusBadRequest {
					t.Errorf("got status code %d, want %d", resp.StatusCode, http.StatusBadRequest)
				}
			},
		},
		{
			name: "POST without dns-message content type",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/dns-query", bytes.NewReader(packedQuestion(t)))
			},
			check: func(t *testing.T, resp *http.Response) {
				if resp.StatusCode != http.StatusUnsupportedMediaType {
					t.Errorf("got status code %d, want %d", resp.StatusCode, http.StatusUnsupportedMediaType)
				}
			},
		},
		{
			name: "method not allowed",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPut, "/dns-query", nil)
			},
			check: func(t *testing.T, resp *http.Response) {
				if resp.StatusCode != http.StatusMethodNotAllowed {
					t.Errorf("got status code %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
				}
			},
		},
		{
			name: "valid request (GET)",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/dns-query", nil)

				q := req.URL.Query()
				q.Set("dns", base64.RawURLEncoding.EncodeToString(packedQuestion(t)))
				req.URL.RawQuery = q.Encode()

				return req
			},
			check: checkSuccess,
		},
		{
			name: "valid request (POST)",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/dns-query", bytes.NewReader(packedQuestion(t)))
				req.Header.Set("Content-Type", "application/dns-message")
				return req
			},
			check: checkSuccess,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, test.req(t))

			test.check(t, rec.Result())
		})
	}
}

func TestForwarder(t *testing.T) {
	upstream, _ := testServer(t)

	// The first server is unreachable; the forwarder fails over to the
	// test upstream.
	config, err := dohconf.FromString("https://127.0.0.1:1/dns-query{?dns} " + upstream.URL + "/dns-query{?dns}")
	if err != nil {
		t.Fatal(err)
	}

	forward := doh.Forwarder(upstream.Client(), config)

	req := httptest.NewRequest(http.MethodGet, "/dns-query", nil)
	question := testQuestion("google.com")

	resp, err := forward(httptest.NewRecorder(), req, &question)
	if err != nil {
		t.Fatal(err)
	}

	if len(resp.Answer) == 0 {
		t.Error("got no answer for known domain")
	}

	t.Run("all servers fail", func(t *testing.T) {
		config, err := dohconf.FromString("https://127.0.0.1:1/dns-query{?dns}")
		if err != nil {
			t.Fatal(err)
		}

		forward := doh.Forwarder(upstream.Client(), config)

		_, err = forward(httptest.NewRecorder(), req, &question)
		if !errors.Is(err, doh.ErrForwarderFailed) {
			t.Errorf("got error %v, want %v", err, doh.ErrForwarderFailed)
		}
	})
}
