package mock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExpectationDefaults(t *testing.T) {
	exp := NewExpectation(&RequestDefinition{Path: "/x"})

	assert.NotEmpty(t, exp.ID)
	assert.True(t, exp.Times.IsUnlimited())
	assert.True(t, exp.TimeToLive.IsUnlimited())
	assert.Equal(t, SourceAPI, exp.Source)
	assert.False(t, exp.Created.IsZero())
	assert.True(t, exp.IsActive())
}

func TestThenReplacesAction(t *testing.T) {
	exp := NewExpectation(&RequestDefinition{Path: "/x"}).
		ThenRespond(&ResponseAction{StatusCode: 200}).
		ThenForward(&ForwardAction{Host: "upstream", Port: 8080})

	require.NotNil(t, exp.Action)
	assert.Equal(t, ActionForward, exp.Action.Type)
	assert.Nil(t, exp.Action.Response)
}

func TestSortsBefore(t *testing.T) {
	now := time.Now()

	mk := func(priority int, created time.Time, seq uint64) *Expectation {
		e := NewExpectation(&RequestDefinition{Path: "/x"})
		e.Priority = priority
		e.Created = created
		e.SetSequence(seq)
		return e
	}

	tests := []struct {
		name string
		a, b *Expectation
		want bool
	}{
		{
			name: "higher priority first",
			a:    mk(10, now, 2),
			b:    mk(0, now.Add(-time.Hour), 1),
			want: true,
		},
		{
			name: "earlier creation first within priority",
			a:    mk(5, now.Add(-time.Minute), 2),
			b:    mk(5, now, 1),
			want: true,
		},
		{
			name: "sequence breaks exact ties",
			a:    mk(5, now, 1),
			b:    mk(5, now, 2),
			want: true,
		},
		{
			name: "ordering is antisymmetric",
			a:    mk(5, now, 2),
			b:    mk(5, now, 1),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.SortsBefore(tt.b))
		})
	}
}

func TestExpectationValidate(t *testing.T) {
	valid := NewExpectation(&RequestDefinition{Path: "/x"}).
		ThenRespond(&ResponseAction{StatusCode: 200})
	assert.NoError(t, valid.Validate())

	noID := NewExpectation(&RequestDefinition{Path: "/x"})
	noID.ID = ""
	assert.Error(t, noID.Validate())

	noRequest := &Expectation{ID: "a"}
	assert.Error(t, noRequest.Validate())

	badAction := NewExpectation(&RequestDefinition{Path: "/x"})
	badAction.Action = &Action{Type: ActionForward}
	assert.Error(t, badAction.Validate())
}

func TestCloneSharesUsageCounters(t *testing.T) {
	exp := NewExpectation(&RequestDefinition{Path: "/x"}).WithTimes(Exactly(1))
	clone := exp.Clone()

	assert.True(t, exp.Times.Decrement())
	assert.True(t, clone.Times.Spent(), "clones observe live usage")
}
