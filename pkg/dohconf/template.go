package dohconf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// uriTemplate is a parsed [RFC6570] URI template, restricted to the
// expression forms DoH templates use: levels 1 through 3 plus the prefix
// and explode modifiers.
//
// [RFC6570]: https://tools.ietf.org/html/rfc6570
type uriTemplate struct {
	raw   string
	parts []templatePart
}

// templatePart is either a run of literal text or one {...} expression.
type templatePart struct {
	literal string
	isExpr  bool
	op      byte // expression operator, 0 for simple expansion
	vars    []templateVar
}

type templateVar struct {
	name    string
	prefix  int // ":n" modifier, 0 when absent
	explode bool
}

func parseURITemplate(raw string) (*uriTemplate, error) {
	t := &uriTemplate{raw: raw}

	for i := 0; i < len(raw); {
		if raw[i] == '}' {
			return nil, errors.New("unmatched '}'")
		}

		if raw[i] != '{' {
			j := i
			for j < len(raw) && raw[j] != '{' && raw[j] != '}' {
				if raw[j] <= ' ' || raw[j] == 0x7f {
					return nil, errors.New("control character in template literal")
				}
				j++
			}
			t.parts = append(t.parts, templatePart{literal: raw[i:j]})
			i = j
			continue
		}

		end := strings.IndexByte(raw[i:], '}')
		if end < 0 {
			return nil, errors.New("unterminated expression")
		}

		part, err := parseExpression(raw[i+1 : i+end])
		if err != nil {
			return nil, err
		}

		t.parts = append(t.parts, part)
		i += end + 1
	}

	return t, nil
}

func parseExpression(expr string) (templatePart, error) {
	part := templatePart{isExpr: true}

	if expr == "" {
		return part, errors.New("empty expression")
	}

	switch expr[0] {
	case '+', '#', '.', '/', ';', '?', '&':
		part.op = expr[0]
		expr = expr[1:]
	case '=', ',', '!', '@', '|':
		// Operators reserved by RFC 6570 for future extension.
		return part, fmt.Errorf("reserved operator %q", expr[0])
	}

	if expr == "" {
		return part, errors.New("expression has no variables")
	}

	for _, spec := range strings.Split(expr, ",") {
		v, err := parseVarspec(spec)
		if err != nil {
			return part, err
		}
		part.vars = append(part.vars, v)
	}

	return part, nil
}

func parseVarspec(spec string) (templateVar, error) {
	var v templateVar

	name := spec
	if strings.HasSuffix(spec, "*") {
		v.explode = true
		name = spec[:len(spec)-1]
	} else if idx := strings.IndexByte(spec, ':'); idx >= 0 {
		name = spec[:idx]
		digits := spec[idx+1:]
		if len(digits) == 0 || len(digits) > 4 {
			return v, fmt.Errorf("invalid prefix modifier in %q", spec)
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n < 1 {
			return v, fmt.Errorf("invalid prefix modifier in %q", spec)
		}
		v.prefix = n
	}

	if name == "" {
		return v, fmt.Errorf("empty variable name in %q", spec)
	}
	for i := 0; i < len(name); i++ {
		if !isVarChar(name[i]) {
			return v, fmt.Errorf("invalid variable name %q", name)
		}
	}

	v.name = name
	return v, nil
}

func isVarChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '.' || c == '%':
		return true
	}
	return false
}

// hasVariable reports whether the template references the named variable
// in any of its expressions.
func (t *uriTemplate) hasVariable(name string) bool {
	for _, p := range t.parts {
		if !p.isExpr {
			continue
		}
		for _, v := range p.vars {
			if v.name == name {
				return true
			}
		}
	}
	return false
}

// exprForm describes how an expression operator joins and escapes its
// variable expansions (RFC 6570 appendix A).
type exprForm struct {
	first         string
	sep           string
	named         bool
	ifEmpty       string
	allowReserved bool
}

var exprForms = map[byte]exprForm{
	0:   {first: "", sep: ","},
	'+': {first: "", sep: ",", allowReserved: true},
	'#': {first: "#", sep: ",", allowReserved: true},
	'.': {first: ".", sep: "."},
	'/': {first: "/", sep: "/"},
	';': {first: ";", sep: ";", named: true},
	'?': {first: "?", sep: "&", named: true, ifEmpty: "="},
	'&': {first: "&", sep: "&", named: true, ifEmpty: "="},
}

// expand renders the template with the given variable bindings. Undefined
// variables expand to nothing, per RFC 6570.
func (t *uriTemplate) expand(vars map[string]string) string {
	var b strings.Builder

	for _, p := range t.parts {
		if !p.isExpr {
			b.WriteString(p.literal)
			continue
		}

		form := exprForms[p.op]
		first := true
		for _, v := range p.vars {
			val, ok := vars[v.name]
			if !ok {
				continue
			}
			if v.prefix > 0 && v.prefix < len(val) {
				val = val[:v.prefix]
			}

			if first {
				b.WriteString(form.first)
				first = false
			} else {
				b.WriteString(form.sep)
			}

			if form.named {
				b.WriteString(v.name)
				if val == "" {
					b.WriteString(form.ifEmpty)
					continue
				}
				b.WriteByte('=')
			}
			b.WriteString(pctEncode(val, form.allowReserved))
		}
	}

	return b.String()
}

func pctEncode(s string, allowReserved bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || (allowReserved && isReserved(c)) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}

func isReserved(c byte) bool {
	return strings.IndexByte(":/?#[]@!$&'()*+,;=", c) >= 0
}
