package transform

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Template is a naming template with brace placeholders, e.g.
// "{field}_{coll}__{type}". "{{" and "}}" produce literal braces.
//
// Templates are parsed once at configuration time against the set of
// placeholder names their use site provides, so Format never fails.
type Template struct {
	raw   string
	parts []templatePart
}

type templatePart struct {
	literal string
	name    string // placeholder name; empty for literal parts
}

// Placeholder names available to the naming templates.
const (
	VarField = "field"
	VarColl  = "coll"
	VarType  = "type"
	VarDB    = "db"
)

// FieldVars lists the placeholders a field-name template may use.
var FieldVars = []string{VarField, VarColl, VarType, VarDB}

// NameVars lists the placeholders an index or type template may use.
var NameVars = []string{VarDB, VarColl}

// ParseTemplate parses raw, rejecting placeholders not in allowed.
func ParseTemplate(raw string, allowed []string) (*Template, error) {
	t := &Template{raw: raw}
	var lit strings.Builder

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '{' && i+1 < len(raw) && raw[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(raw) && raw[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(raw[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("template %q: unclosed '{' at offset %d", raw, i)
			}
			name := raw[i+1 : i+1+end]
			if !slices.Contains(allowed, name) {
				return nil, fmt.Errorf("template %q: unknown placeholder {%s} (allowed: %s)",
					raw, name, strings.Join(allowed, ", "))
			}
			if lit.Len() > 0 {
				t.parts = append(t.parts, templatePart{literal: lit.String()})
				lit.Reset()
			}
			t.parts = append(t.parts, templatePart{name: name})
			i += end + 1
		case c == '}':
			return nil, fmt.Errorf("template %q: single '}' at offset %d", raw, i)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		t.parts = append(t.parts, templatePart{literal: lit.String()})
	}
	return t, nil
}

// MustParseTemplate is like ParseTemplate but panics on error.
// Intended for tests and package-level defaults.
func MustParseTemplate(raw string, allowed []string) *Template {
	t, err := ParseTemplate(raw, allowed)
	if err != nil {
		panic(err)
	}
	return t
}

// Format renders the template. Missing vars render as empty strings.
// The result is NFC normalized so visually identical names compare equal.
func (t *Template) Format(vars map[string]string) string {
	var b strings.Builder
	for _, p := range t.parts {
		if p.name == "" {
			b.WriteString(p.literal)
			continue
		}
		b.WriteString(vars[p.name])
	}
	return norm.NFC.String(b.String())
}

// String returns the raw template text.
func (t *Template) String() string {
	if t == nil {
		return ""
	}
	return t.raw
}
