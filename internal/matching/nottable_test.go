package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  NottableString
	}{
		{
			name:  "plain value",
			input: "Content-Type",
			want:  NottableString{Value: "Content-Type"},
		},
		{
			name:  "negated",
			input: "!application/json",
			want:  NottableString{Value: "application/json", Not: true},
		},
		{
			name:  "optional",
			input: "?X-Trace-Id",
			want:  NottableString{Value: "X-Trace-Id", Optional: true},
		},
		{
			name:  "optional then negated",
			input: "?!sessionId",
			want:  NottableString{Value: "sessionId", Not: true, Optional: true},
		},
		{
			name:  "negated then optional",
			input: "!?sessionId",
			want:  NottableString{Value: "sessionId", Not: true, Optional: true},
		},
		{
			name:  "each prefix consumed once",
			input: "!!value",
			want:  NottableString{Value: "!value", Not: true},
		},
		{
			name:  "empty",
			input: "",
			want:  NottableString{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.input))
		})
	}
}

func TestNottableStringRoundTrip(t *testing.T) {
	for _, raw := range []string{"abc", "!abc", "?abc", "?!abc"} {
		assert.Equal(t, raw, Parse(raw).String())
	}
}

func TestEqualIgnoreCase(t *testing.T) {
	assert.True(t, String("Host").EqualIgnoreCase(String("host")))
	assert.True(t, Not("Host").EqualIgnoreCase(Not("HOST")))
	assert.False(t, String("Host").EqualIgnoreCase(Not("Host")))
	assert.False(t, String("Host").EqualIgnoreCase(String("Hosts")))
}
