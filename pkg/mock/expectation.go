package mock

import (
	"fmt"
	"time"

	"github.com/expectd/expectd/internal/id"
)

// Source records which plane created an expectation.
type Source string

const (
	SourceAPI     Source = "api"
	SourceFile    Source = "file"
	SourceOpenAPI Source = "openapi"
)

// Expectation pairs a request matcher with an action and usage constraints.
// Two expectations are the same entity when their IDs match; priority and
// insertion order only affect store ordering.
type Expectation struct {
	ID       string             `json:"id" yaml:"id"`
	Priority int                `json:"priority,omitempty" yaml:"priority,omitempty"`
	Request  *RequestDefinition `json:"httpRequest" yaml:"httpRequest"`

	Times      *Times      `json:"times,omitempty" yaml:"times,omitempty"`
	TimeToLive *TimeToLive `json:"timeToLive,omitempty" yaml:"timeToLive,omitempty"`

	Action *Action `json:"action,omitempty" yaml:"action,omitempty"`

	Source  Source    `json:"source,omitempty" yaml:"source,omitempty"`
	Created time.Time `json:"created,omitempty" yaml:"created,omitempty"`

	// sequence is the store-assigned monotonic insertion number, the final
	// ordering tiebreaker. Unique even within a batch upsert.
	sequence uint64
}

// NewExpectation creates an expectation for the given request pattern with a
// fresh id, unlimited Times and TimeToLive, and no action yet.
func NewExpectation(request *RequestDefinition) *Expectation {
	return &Expectation{
		ID:         id.UUID(),
		Request:    request,
		Times:      Unlimited(),
		TimeToLive: TTLUnlimited(),
		Source:     SourceAPI,
		Created:    time.Now(),
	}
}

// WithID overrides the generated id.
func (e *Expectation) WithID(expectationID string) *Expectation {
	e.ID = expectationID
	return e
}

// WithPriority sets the matching priority (higher matches first).
func (e *Expectation) WithPriority(priority int) *Expectation {
	e.Priority = priority
	return e
}

// WithTimes sets the remaining-match budget.
func (e *Expectation) WithTimes(times *Times) *Expectation {
	e.Times = times
	return e
}

// WithTimeToLive sets the expiry window.
func (e *Expectation) WithTimeToLive(ttl *TimeToLive) *Expectation {
	e.TimeToLive = ttl
	return e
}

// ThenRespond attaches a response action, replacing any prior action.
func (e *Expectation) ThenRespond(response *ResponseAction) *Expectation {
	e.Action = &Action{Type: ActionResponse, Response: response}
	return e
}

// ThenForward attaches a forward action, replacing any prior action.
func (e *Expectation) ThenForward(forward *ForwardAction) *Expectation {
	e.Action = &Action{Type: ActionForward, Forward: forward}
	return e
}

// ThenError attaches an error action, replacing any prior action.
func (e *Expectation) ThenError(errAction *ErrorAction) *Expectation {
	e.Action = &Action{Type: ActionError, Error: errAction}
	return e
}

// ThenCallback attaches a callback action, replacing any prior action.
func (e *Expectation) ThenCallback(callback *CallbackAction) *Expectation {
	e.Action = &Action{Type: ActionCallback, Callback: callback}
	return e
}

// ThenTemplate attaches a template action, replacing any prior action.
func (e *Expectation) ThenTemplate(template *TemplateAction) *Expectation {
	e.Action = &Action{Type: ActionTemplate, Template: template}
	return e
}

// IsActive reports whether the expectation may still match: its Times budget
// is not spent and its TimeToLive window has not closed.
func (e *Expectation) IsActive() bool {
	return !e.Times.Spent() && !e.TimeToLive.Expired(time.Now())
}

// DecrementRemainingMatches consumes one match from the Times budget.
// Reports whether a counter actually changed.
func (e *Expectation) DecrementRemainingMatches() bool {
	return e.Times.Decrement()
}

// Sequence returns the store-assigned insertion number.
func (e *Expectation) Sequence() uint64 { return e.sequence }

// SetSequence records the store-assigned insertion number. Only the store
// calls this, under its write lock.
func (e *Expectation) SetSequence(seq uint64) { e.sequence = seq }

// SortsBefore reports whether e precedes other in matching order:
// priority descending, then creation time ascending, then sequence
// ascending. Sequence is unique so the order is total.
func (e *Expectation) SortsBefore(other *Expectation) bool {
	if e.Priority != other.Priority {
		return e.Priority > other.Priority
	}
	if !e.Created.Equal(other.Created) {
		return e.Created.Before(other.Created)
	}
	return e.sequence < other.sequence
}

// Validate checks the expectation's declarative invariants prior to storage.
func (e *Expectation) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("expectation requires an id")
	}
	if e.Request == nil {
		return fmt.Errorf("expectation %s requires a request matcher", e.ID)
	}
	if err := e.Request.Validate(); err != nil {
		return fmt.Errorf("expectation %s: %w", e.ID, err)
	}
	if e.Action != nil {
		if err := e.Action.Validate(); err != nil {
			return fmt.Errorf("expectation %s: %w", e.ID, err)
		}
	}
	return nil
}

// Clone returns a shallow copy safe to hand to listeners and retrieval
// callers. Times and TimeToLive are shared so observed usage stays live.
func (e *Expectation) Clone() *Expectation {
	clone := *e
	return &clone
}
