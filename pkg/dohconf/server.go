package dohconf

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"slices"
)

// dnsQueryVar is the URI template variable bound to the base64url-encoded
// DNS query for GET transport ([RFC8484] section 4.1).
//
// [RFC8484]: https://tools.ietf.org/html/rfc8484
const dnsQueryVar = "dns"

// Endpoint is a set of IP addresses at which a server is reachable,
// usable to bootstrap the resolution of the server's own hostname.
type Endpoint struct {
	IPs []netip.Addr `json:"ips"`
}

// Equal reports whether two endpoints carry the same addresses in the
// same order.
func (e Endpoint) Equal(other Endpoint) bool {
	return slices.Equal(e.IPs, other.IPs)
}

// Server describes a single DoH server: its URI template plus optional
// settings. A usable Server is obtained from [ParseServer] or by
// unmarshaling its JSON form; the zero value is not a valid server.
//
// A Server is a value: it is never mutated after construction and may be
// freely copied and shared.
type Server struct {
	template  string
	usePost   bool
	endpoints []Endpoint
	tmpl      *uriTemplate
}

// ParseServer parses and validates a DoH server URI template, optionally
// attaching endpoint address hints.
//
// The template must be a syntactically valid [RFC6570] URI template that
// expands to an https URL with a host. Queries use the GET method when the
// template contains a "dns" variable, and POST otherwise ([RFC8484]
// section 4.1).
//
// [RFC6570]: https://tools.ietf.org/html/rfc6570
// [RFC8484]: https://tools.ietf.org/html/rfc8484
func ParseServer(template string, endpoints ...Endpoint) (Server, error) {
	tmpl, err := parseURITemplate(template)
	if err != nil {
		return Server{}, fmt.Errorf("dohconf: invalid server template %q: %w", template, err)
	}

	usePost := !tmpl.hasVariable(dnsQueryVar)

	// Validate the URL the template produces for a query.
	expanded := tmpl.expand(map[string]string{dnsQueryVar: "AA"})
	u, err := url.Parse(expanded)
	if err != nil {
		return Server{}, fmt.Errorf("dohconf: invalid server template %q: %w", template, err)
	}
	if u.Scheme != "https" {
		return Server{}, fmt.Errorf("dohconf: invalid server template %q: scheme must be https", template)
	}
	if u.Host == "" {
		return Server{}, fmt.Errorf("dohconf: invalid server template %q: missing host", template)
	}

	var copied []Endpoint
	if len(endpoints) > 0 {
		copied = make([]Endpoint, len(endpoints))
		for i, e := range endpoints {
			copied[i] = Endpoint{IPs: slices.Clone(e.IPs)}
		}
	}

	return Server{
		template:  template,
		usePost:   usePost,
		endpoints: copied,
		tmpl:      tmpl,
	}, nil
}

// Template returns the server's canonical URI template.
func (s Server) Template() string {
	return s.template
}

// String returns the server's canonical URI template.
func (s Server) String() string {
	return s.template
}

// UsePost reports whether queries to this server use the POST method.
func (s Server) UsePost() bool {
	return s.usePost
}

// Endpoints returns the server's endpoint address hints.
func (s Server) Endpoints() []Endpoint {
	if len(s.endpoints) == 0 {
		return nil
	}
	out := make([]Endpoint, len(s.endpoints))
	for i, e := range s.endpoints {
		out[i] = Endpoint{IPs: slices.Clone(e.IPs)}
	}
	return out
}

// IsSimple reports whether the server is fully described by its bare URI
// template, with no additional settings. Simple servers round-trip through
// the compact one-template-per-line configuration form.
func (s Server) IsSimple() bool {
	return len(s.endpoints) == 0
}

// Equal reports whether two servers have the same canonical template and
// settings.
func (s Server) Equal(other Server) bool {
	return s.template == other.template &&
		slices.EqualFunc(s.endpoints, other.endpoints, Endpoint.Equal)
}

// URLForQuery returns the URL to use for the given packed DNS query. For
// GET servers the query is bound to the template's "dns" variable in
// base64url form; for POST servers the query travels in the request body
// and the template expands without it.
func (s Server) URLForQuery(query []byte) string {
	if s.usePost {
		return s.tmpl.expand(nil)
	}
	return s.tmpl.expand(map[string]string{
		dnsQueryVar: base64.RawURLEncoding.EncodeToString(query),
	})
}

// serverJSON is the structured form of a Server.
type serverJSON struct {
	Template  string     `json:"template"`
	Endpoints []Endpoint `json:"endpoints,omitempty"`
}

// MarshalJSON implements [json.Marshaler]. It is total and lossless for
// any valid Server.
func (s Server) MarshalJSON() ([]byte, error) {
	return json.Marshal(serverJSON{
		Template:  s.template,
		Endpoints: s.endpoints,
	})
}

// UnmarshalJSON implements [json.Unmarshaler]. The value must be an object
// with a valid "template" and, optionally, "endpoints" holding lists of IP
// address strings under "ips".
func (s *Server) UnmarshalJSON(b []byte) error {
	var raw serverJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("dohconf: invalid server value: %w", err)
	}
	if raw.Template == "" {
		return errors.New("dohconf: invalid server value: missing template")
	}

	parsed, err := ParseServer(raw.Template, raw.Endpoints...)
	if err != nil {
		return err
	}

	*s = parsed
	return nil
}
