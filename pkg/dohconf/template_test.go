package dohconf

import "testing"

func TestTemplateExpand(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{
			name:     "literal only",
			template: "https://dns.example/dns-query",
			want:     "https://dns.example/dns-query",
		},
		{
			name:     "simple expansion",
			template: "https://dns.example/{dns}",
			vars:     map[string]string{"dns": "abc"},
			want:     "https://dns.example/abc",
		},
		{
			name:     "query expansion",
			template: "https://dns.example/dns-query{?dns}",
			vars:     map[string]string{"dns": "abc"},
			want:     "https://dns.example/dns-query?dns=abc",
		},
		{
			name:     "query expansion with multiple variables",
			template: "https://dns.example/dns-query{?dns,ct}",
			vars:     map[string]string{"dns": "abc", "ct": "message"},
			want:     "https://dns.example/dns-query?dns=abc&ct=message",
		},
		{
			name:     "query continuation",
			template: "https://dns.example/dns-query?ct=message{&dns}",
			vars:     map[string]string{"dns": "abc"},
			want:     "https://dns.example/dns-query?ct=message&dns=abc",
		},
		{
			name:     "path segment expansion",
			template: "https://dns.example/q{/dns}",
			vars:     map[string]string{"dns": "abc"},
			want:     "https://dns.example/q/abc",
		},
		{
			name:     "path style expansion",
			template: "https://dns.example/q{;dns}",
			vars:     map[string]string{"dns": "abc"},
			want:     "https://dns.example/q;dns=abc",
		},
		{
			name:     "fragment expansion",
			template: "https://dns.example/q{#dns}",
			vars:     map[string]string{"dns": "a/b"},
			want:     "https://dns.example/q#a/b",
		},
		{
			name:     "reserved expansion keeps reserved characters",
			template: "https://dns.example{+path}",
			vars:     map[string]string{"path": "/dns-query"},
			want:     "https://dns.example/dns-query",
		},
		{
			name:     "label expansion",
			template: "https://{env}.example/dns-query",
			vars:     map[string]string{"env": "dns"},
			want:     "https://dns.example/dns-query",
		},
		{
			name:     "undefined variable expands to nothing",
			template: "https://dns.example/dns-query{?dns}",
			want:     "https://dns.example/dns-query",
		},
		{
			name:     "undefined variable among defined ones",
			template: "https://dns.example/dns-query{?missing,dns}",
			vars:     map[string]string{"dns": "abc"},
			want:     "https://dns.example/dns-query?dns=abc",
		},
		{
			name:     "empty value keeps the name",
			template: "https://dns.example/dns-query{?dns}",
			vars:     map[string]string{"dns": ""},
			want:     "https://dns.example/dns-query?dns=",
		},
		{
			name:     "prefix modifier truncates",
			template: "https://dns.example/dns-query{?dns:2}",
			vars:     map[string]string{"dns": "abcdef"},
			want:     "https://dns.example/dns-query?dns=ab",
		},
		{
			name:     "explode modifier on a string value",
			template: "https://dns.example/dns-query{?dns*}",
			vars:     map[string]string{"dns": "abc"},
			want:     "https://dns.example/dns-query?dns=abc",
		},
		{
			name:     "unsafe characters are percent encoded",
			template: "https://dns.example/dns-query{?dns}",
			vars:     map[string]string{"dns": "a b/c"},
			want:     "https://dns.example/dns-query?dns=a%20b%2Fc",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tmpl, err := parseURITemplate(test.template)
			if err != nil {
				t.Fatalf("parseURITemplate(%q) returned error: %v", test.template, err)
			}

			if got := tmpl.expand(test.vars); got != test.want {
				t.Errorf("got %q, want %q", got, test.want)
			}
		})
	}
}

func TestTemplateParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{name: "unterminated expression", template: "https://dns.example/{dns"},
		{name: "unmatched closing brace", template: "https://dns.example/dns}"},
		{name: "empty expression", template: "https://dns.example/{}"},
		{name: "operator without variables", template: "https://dns.example/{?}"},
		{name: "reserved operator", template: "https://dns.example/{=dns}"},
		{name: "trailing comma", template: "https://dns.example/{?dns,}"},
		{name: "empty variable name with modifier", template: "https://dns.example/{?:3}"},
		{name: "invalid variable character", template: "https://dns.example/{?dns!}"},
		{name: "zero prefix length", template: "https://dns.example/{?dns:0}"},
		{name: "oversized prefix length", template: "https://dns.example/{?dns:12345}"},
		{name: "space in literal", template: "https://dns.example/dns query"},
		{name: "control character in literal", template: "https://dns.example/dns\x01query"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := parseURITemplate(test.template); err == nil {
				t.Errorf("parseURITemplate(%q) succeeded, want error", test.template)
			}
		})
	}
}

func TestTemplateHasVariable(t *testing.T) {
	tmpl, err := parseURITemplate("https://dns.example/dns-query{?ct,dns}")
	if err != nil {
		t.Fatal(err)
	}

	if !tmpl.hasVariable("dns") {
		t.Error("hasVariable(dns) = false, want true")
	}
	if tmpl.hasVariable("missing") {
		t.Error("hasVariable(missing) = true, want false")
	}
}
