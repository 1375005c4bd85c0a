package requestlog

import (
	"encoding/json"
	"fmt"

	"github.com/expectd/expectd/pkg/mock"
)

// VerificationTimes bounds how often a request must have been received.
// AtMost < 0 means no upper bound.
type VerificationTimes struct {
	AtLeast int `json:"atLeast"`
	AtMost  int `json:"atMost"`
}

// UnmarshalJSON defaults an absent atMost to unbounded rather than zero.
func (t *VerificationTimes) UnmarshalJSON(data []byte) error {
	var raw struct {
		AtLeast *int `json:"atLeast"`
		AtMost  *int `json:"atMost"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.AtLeast = 0
	if raw.AtLeast != nil {
		t.AtLeast = *raw.AtLeast
	}
	t.AtMost = -1
	if raw.AtMost != nil {
		t.AtMost = *raw.AtMost
	}
	return nil
}

// AtLeastOnce is the default verification bound.
func AtLeastOnce() VerificationTimes {
	return VerificationTimes{AtLeast: 1, AtMost: -1}
}

// ExactlyTimes requires precisely n receptions.
func ExactlyTimes(n int) VerificationTimes {
	return VerificationTimes{AtLeast: n, AtMost: n}
}

// Verify checks that requests matching the selector were received within the
// given bounds. The returned error describes the failure for the caller to
// surface.
func (s *Store) Verify(selector *mock.RequestDefinition, times VerificationTimes) error {
	count, err := s.CountMatching(selector)
	if err != nil {
		return err
	}
	if count < times.AtLeast {
		return fmt.Errorf("request received %d times, expected at least %d", count, times.AtLeast)
	}
	if times.AtMost >= 0 && count > times.AtMost {
		return fmt.Errorf("request received %d times, expected at most %d", count, times.AtMost)
	}
	return nil
}

// VerifySequence checks that requests matching each selector were received in
// the given order. Other requests may be interleaved.
func (s *Store) VerifySequence(selectors ...*mock.RequestDefinition) error {
	entries, err := s.Retrieve(nil)
	if err != nil {
		return err
	}
	next := 0
	for i, sel := range selectors {
		matcher, err := s.compileSelector(sel)
		if err != nil {
			return err
		}
		found := false
		for ; next < len(entries); next++ {
			if matcher == nil || matcher.Matches(entries[next].Request) {
				found = true
				next++
				break
			}
		}
		if !found {
			return fmt.Errorf("request sequence broken: no recorded request matches selector %d of %d in order", i+1, len(selectors))
		}
	}
	return nil
}
