package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringMatcherMatches(t *testing.T) {
	sm := NewStringMatcher(nil, 0)

	tests := []struct {
		name       string
		matcher    NottableString
		candidate  string
		ignoreCase bool
		want       bool
	}{
		{
			name:      "literal equality",
			matcher:   String("/api/orders"),
			candidate: "/api/orders",
			want:      true,
		},
		{
			name:      "literal mismatch",
			matcher:   String("/api/orders"),
			candidate: "/api/users",
			want:      false,
		},
		{
			name:       "case-insensitive literal",
			matcher:    String("content-type"),
			candidate:  "Content-Type",
			ignoreCase: true,
			want:       true,
		},
		{
			name:      "anchored regex full match",
			matcher:   String("/api/.*"),
			candidate: "/api/orders/42",
			want:      true,
		},
		{
			name:      "anchored regex rejects partial",
			matcher:   String("api"),
			candidate: "/api/orders",
			want:      false,
		},
		{
			name:      "blank matcher matches anything",
			matcher:   String(""),
			candidate: "whatever",
			want:      true,
		},
		{
			name:      "negated literal",
			matcher:   Not("GET"),
			candidate: "POST",
			want:      true,
		},
		{
			name:      "negated literal blocks match",
			matcher:   Not("GET"),
			candidate: "GET",
			want:      false,
		},
		{
			name:      "invalid regex degrades to literal",
			matcher:   String("[unclosed"),
			candidate: "[unclosed",
			want:      true,
		},
		{
			name:      "invalid regex literal mismatch",
			matcher:   String("[unclosed"),
			candidate: "anything",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sm.Matches(tt.matcher, tt.candidate, tt.ignoreCase))
		})
	}
}

func TestStringMatcherSchema(t *testing.T) {
	sm := NewStringMatcher(nil, 0)
	schema := SchemaString(`{"type": "string", "pattern": "^[0-9]{4}$"}`)

	assert.True(t, sm.Matches(schema, "1234", false))
	assert.False(t, sm.Matches(schema, "12345", false))
	assert.False(t, sm.Matches(schema, "abcd", false))

	// schema matching a JSON candidate
	numeric := SchemaString(`{"type": "integer", "minimum": 10}`)
	assert.True(t, sm.Matches(numeric, "42", false))
	assert.False(t, sm.Matches(numeric, "3", false))

	// candidates that parse as JSON scalars still satisfy string schemas
	text := SchemaString(`{"type": "string"}`)
	assert.True(t, sm.Matches(text, "true", false))
	assert.True(t, sm.Matches(text, "42", false))
	assert.True(t, sm.Matches(text, "plain", false))
}

func TestStringMatcherDoubleNegation(t *testing.T) {
	sm := NewStringMatcher(nil, 0)

	// a negated matcher against a negated comparison recovers the positive
	matcher := Not("value")
	assert.False(t, sm.Matches(matcher, "value", false))
	assert.True(t, sm.rawMatch(String(matcher.Value), "value", false))
}

func TestValidateSchema(t *testing.T) {
	sm := NewStringMatcher(nil, 0)

	require.NoError(t, sm.ValidateSchema(`{"type": "string"}`))
	assert.Error(t, sm.ValidateSchema(`{"type": 12}`))
	assert.Error(t, sm.ValidateSchema(`not json at all`))
}

func TestStringMatcherCacheReuse(t *testing.T) {
	sm := NewStringMatcher(nil, 2)

	// same pattern twice hits the cache, different case flags do not collide
	assert.True(t, sm.Matches(String("ab+"), "abb", false))
	assert.True(t, sm.Matches(String("ab+"), "abb", false))
	assert.True(t, sm.Matches(String("AB+"), "abb", true))
	assert.False(t, sm.Matches(String("AB+"), "abb", false))
}
