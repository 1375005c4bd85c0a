package matching

import "strings"

// NottableString is a string pattern with independent negation and
// optionality flags. Negation inverts the match result; optionality is only
// meaningful for map keys, where it allows the key to be absent from the
// candidate entirely.
//
// Schema marks the value as an inline JSON schema document: the candidate is
// validated against the schema instead of compared as regex or literal.
type NottableString struct {
	Value    string
	Not      bool
	Optional bool
	Schema   bool
}

// String constructs a plain literal/regex pattern.
func String(value string) NottableString {
	return NottableString{Value: value}
}

// Not constructs a negated pattern.
func Not(value string) NottableString {
	return NottableString{Value: value, Not: true}
}

// Optional constructs an optional map key.
func Optional(value string) NottableString {
	return NottableString{Value: value, Optional: true}
}

// SchemaString constructs a pattern whose value is a JSON schema document.
func SchemaString(schema string) NottableString {
	return NottableString{Value: schema, Schema: true}
}

// Parse interprets matcher-side prefix sugar: a leading "!" negates, a
// leading "?" marks the key optional, in either order. Candidate (request)
// strings must never go through Parse; there the characters are literal.
func Parse(value string) NottableString {
	n := NottableString{}
	for {
		switch {
		case strings.HasPrefix(value, "!") && !n.Not:
			n.Not = true
			value = value[1:]
		case strings.HasPrefix(value, "?") && !n.Optional:
			n.Optional = true
			value = value[1:]
		default:
			n.Value = value
			return n
		}
	}
}

// ParseAll applies Parse to each element.
func ParseAll(values []string) []NottableString {
	out := make([]NottableString, len(values))
	for i, v := range values {
		out[i] = Parse(v)
	}
	return out
}

// IsBlank reports whether the pattern has no text.
func (n NottableString) IsBlank() bool {
	return n.Value == ""
}

// EqualIgnoreCase compares two nottable strings for configuration equality
// (case-insensitive value, agreeing flags after De Morgan inversion: !a vs a
// are equal patterns matched in opposite directions).
func (n NottableString) EqualIgnoreCase(other NottableString) bool {
	return strings.EqualFold(n.Value, other.Value) && n.Not == other.Not
}

func (n NottableString) String() string {
	prefix := ""
	if n.Optional {
		prefix += "?"
	}
	if n.Not {
		prefix += "!"
	}
	return prefix + n.Value
}
