// Package dohconf parses, validates, canonicalizes, and serializes
// DNS-over-HTTPS (DoH) resolver group configurations.
//
// A configuration names an ordered group of DoH servers. It is written
// either as a whitespace-separated list of [RFC6570] URI templates, the
// ergonomic form for the common case:
//
//	https://dns.google/dns-query{?dns} https://cloudflare-dns.com/dns-query{?dns}
//
// or as a JSON document carrying per-server settings that the compact form
// cannot express:
//
//	{"servers": [{"template": "https://dns.google/dns-query{?dns}",
//	              "endpoints": [{"ips": ["8.8.8.8", "8.8.4.4"]}]}]}
//
// Both forms normalize into the same immutable [Config] value. Parsing is
// offered under two policies: [FromString] accepts a configuration only
// when every server in it is valid, while [FromStringLax] keeps whatever
// parses and never fails.
//
// [RFC6570]: https://tools.ietf.org/html/rfc6570
package dohconf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoServers is returned by strict parsing when the input contains
	// no server templates at all.
	ErrNoServers = errors.New("dohconf: configuration contains no servers")

	// ErrInvalidServer is returned by strict parsing when any server in
	// the input fails to parse.
	ErrInvalidServer = errors.New("dohconf: invalid server")
)

// jsonKeyServers is the key holding the server list in the JSON form.
const jsonKeyServers = "servers"

// Config is an ordered group of DoH servers. It is immutable after
// construction: deriving a changed configuration means constructing a new
// Config, so values may be shared across goroutines without
// synchronization.
//
// Order is preserved exactly as parsed and participates in equality and
// serialization; Config neither deduplicates nor reorders.
type Config struct {
	servers []Server
}

// New constructs a Config directly from already-validated servers,
// bypassing re-parsing.
func New(servers ...Server) Config {
	if len(servers) == 0 {
		return Config{}
	}
	return Config{servers: append([]Server(nil), servers...)}
}

// FromTemplates parses a group of server URI templates. All templates must
// be valid for the group to be valid.
func FromTemplates(templates []string) (Config, error) {
	if len(templates) == 0 {
		return Config{}, ErrNoServers
	}
	servers := make([]Server, 0, len(templates))
	for _, template := range templates {
		server, err := ParseServer(template)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalidServer, err)
		}
		servers = append(servers, server)
	}
	return Config{servers: servers}, nil
}

// FromString parses a configuration strictly: the result is either fully
// valid or an error, never a partially-parsed group.
//
// The JSON form takes precedence: when the input is a JSON object with a
// non-empty "servers" list whose elements all parse, that interpretation
// wins. Otherwise the input is treated as a whitespace-separated list of
// URI templates; zero templates fail with [ErrNoServers] and any invalid
// template fails with [ErrInvalidServer]. A JSON document with an EMPTY
// server list is never accepted strictly: a configuration must name at
// least one usable server.
func FromString(input string) (Config, error) {
	if parsed, ok := fromJSON(input); ok {
		if len(parsed.servers) > 0 {
			return parsed, nil
		}
		return Config{}, ErrNoServers
	}
	return FromTemplates(splitGroup(input))
}

// FromStringLax parses a configuration on a best-effort basis and never
// fails. Servers that do not parse are dropped, preserving the relative
// order of the survivors; the result may be empty.
//
// Unlike [FromString], a JSON document with an empty or fully-dropped
// server list is still a successful JSON interpretation here and does not
// fall back to template splitting.
func FromStringLax(input string) Config {
	if parsed, ok := fromJSONLax(input); ok {
		return parsed
	}
	var servers []Server
	for _, template := range splitGroup(input) {
		server, err := ParseServer(template)
		if err != nil {
			continue
		}
		servers = append(servers, server)
	}
	return Config{servers: servers}
}

// Servers returns the group's servers in order.
func (c Config) Servers() []Server {
	return append([]Server(nil), c.servers...)
}

// Equal reports whether two configurations name the same servers in the
// same order.
func (c Config) Equal(other Config) bool {
	if len(c.servers) != len(other.servers) {
		return false
	}
	for i, server := range c.servers {
		if !server.Equal(other.servers[i]) {
			return false
		}
	}
	return true
}

// String renders the configuration's canonical text form. When every
// server is simple the templates are returned one per line, a form that
// [FromString] round-trips back into an equal Config. Otherwise the JSON
// form is returned, pretty-printed with trailing whitespace trimmed.
func (c Config) String() string {
	allSimple := true
	for _, server := range c.servers {
		if !server.IsSimple() {
			allSimple = false
			break
		}
	}

	if allSimple {
		templates := make([]string, len(c.servers))
		for i, server := range c.servers {
			templates[i] = server.Template()
		}
		return strings.Join(templates, "\n")
	}

	// Serialization of a valid Config cannot fail: every value it renders
	// was validated at parse time.
	b, _ := json.MarshalIndent(c, "", "  ")
	return strings.TrimRight(string(b), " \n")
}

// MarshalJSON implements [json.Marshaler], producing the structured form
// {"servers": [...]} in group order. It is total and lossless for any
// Config.
func (c Config) MarshalJSON() ([]byte, error) {
	servers := c.servers
	if servers == nil {
		servers = []Server{}
	}
	return json.Marshal(struct {
		Servers []Server `json:"servers"`
	}{servers})
}

// splitGroup splits a template group on ASCII whitespace, discarding empty
// tokens.
func splitGroup(group string) []string {
	return strings.FieldsFunc(group, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			return true
		}
		return false
	})
}

// jsonServerList extracts the raw elements of the "servers" list,
// reporting whether the input is a JSON object carrying a server list at
// all. Inputs that are not valid JSON, not objects, lack the "servers"
// key, or hold something other than a list under it are not JSON
// configurations and fall through to template parsing.
func jsonServerList(input string) ([]json.RawMessage, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(input), &doc); err != nil {
		return nil, false
	}

	raw, ok := doc[jsonKeyServers]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, false
	}
	return elems, true
}

// fromJSON is the strict JSON interpretation: any element that fails to
// parse abandons the whole interpretation.
func fromJSON(input string) (Config, bool) {
	elems, ok := jsonServerList(input)
	if !ok {
		return Config{}, false
	}

	servers := make([]Server, 0, len(elems))
	for _, elem := range elems {
		var server Server
		if err := json.Unmarshal(elem, &server); err != nil {
			return Config{}, false
		}
		servers = append(servers, server)
	}
	return Config{servers: servers}, true
}

// fromJSONLax is the best-effort JSON interpretation: elements that fail
// to parse are dropped individually.
func fromJSONLax(input string) (Config, bool) {
	elems, ok := jsonServerList(input)
	if !ok {
		return Config{}, false
	}

	var servers []Server
	for _, elem := range elems {
		var server Server
		if err := json.Unmarshal(elem, &server); err != nil {
			continue
		}
		servers = append(servers, server)
	}
	return Config{servers: servers}, true
}
