package matching

import (
	"fmt"
	"strings"

	"github.com/expectd/expectd/pkg/mock"
)

// Entry is one (key, value) pair of a Multimap.
type Entry struct {
	Key   NottableString
	Value NottableString
}

// Multimap is an ordered multi-valued map keyed by NottableString, used for
// headers, cookies, query and path parameters. Insertion order is preserved
// and a key may appear with several values. A key recorded with no values
// represents a bare presence requirement.
type Multimap struct {
	entries []Entry
	// bareKeys are keys put without any value, in insertion order.
	bareKeys []NottableString
}

// NewMultimap returns an empty Multimap.
func NewMultimap() *Multimap {
	return &Multimap{}
}

// MultimapFromEntries builds a matcher-side Multimap from declarative
// entries, applying "!"/"?" prefix parsing to names and "!" to values.
func MultimapFromEntries(entries mock.Entries) (*Multimap, error) {
	m := NewMultimap()
	for _, kv := range entries {
		key := Parse(kv.Name)
		if len(kv.Values) == 0 {
			m.PutBareKey(key)
			continue
		}
		for _, v := range kv.Values {
			if err := m.Put(key, Parse(v)); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// CandidateFromEntries builds a candidate-side Multimap. Names and values
// are literal: a leading "!" or "?" in request data is just a character.
func CandidateFromEntries(entries mock.Entries) *Multimap {
	m := NewMultimap()
	for _, kv := range entries {
		key := String(kv.Name)
		if len(kv.Values) == 0 {
			m.PutBareKey(key)
			continue
		}
		for _, v := range kv.Values {
			// candidate keys are never optional, so Put cannot fail
			_ = m.Put(key, String(v))
		}
	}
	return m
}

// Put appends a value under key. Putting a second value under an optional
// key is an invariant violation and returns an error.
func (m *Multimap) Put(key, value NottableString) error {
	if key.Optional && len(m.valuesFor(key)) > 0 {
		return fmt.Errorf("multiple values for optional key %q are not allowed", key.String())
	}
	m.entries = append(m.entries, Entry{Key: key, Value: value})
	return nil
}

// PutValues appends each value under key.
func (m *Multimap) PutValues(key NottableString, values []NottableString) error {
	if len(values) == 0 {
		m.PutBareKey(key)
		return nil
	}
	for _, v := range values {
		if err := m.Put(key, v); err != nil {
			return err
		}
	}
	return nil
}

// PutBareKey records a key with no value: a presence-only requirement.
func (m *Multimap) PutBareKey(key NottableString) {
	m.bareKeys = append(m.bareKeys, key)
}

func canonicalKey(key NottableString) string {
	return fmt.Sprintf("%t|%t|%s", key.Not, key.Optional, strings.ToLower(key.Value))
}

// Keys returns the distinct keys in first-insertion order, bare keys
// included.
func (m *Multimap) Keys() []NottableString {
	seen := make(map[string]struct{})
	var keys []NottableString
	add := func(key NottableString) {
		ck := canonicalKey(key)
		if _, dup := seen[ck]; !dup {
			seen[ck] = struct{}{}
			keys = append(keys, key)
		}
	}
	for _, e := range m.entries {
		add(e.Key)
	}
	for _, k := range m.bareKeys {
		add(k)
	}
	return keys
}

// valuesFor returns values stored under a configuration-equal key (exact
// lookup, no regex).
func (m *Multimap) valuesFor(key NottableString) []NottableString {
	var values []NottableString
	for _, e := range m.entries {
		if e.Key.EqualIgnoreCase(key) && e.Key.Optional == key.Optional {
			values = append(values, e.Value)
		}
	}
	return values
}

// Get returns the first value whose key matches pattern (regex or literal,
// case-insensitive), or a blank NottableString.
func (m *Multimap) Get(sm *StringMatcher, pattern NottableString) NottableString {
	for _, e := range m.entries {
		if keyMatches(sm, pattern, e.Key) {
			return e.Value
		}
	}
	return NottableString{}
}

// GetAll returns every value whose key matches pattern.
func (m *Multimap) GetAll(sm *StringMatcher, pattern NottableString) []NottableString {
	var values []NottableString
	for _, e := range m.entries {
		if keyMatches(sm, pattern, e.Key) {
			values = append(values, e.Value)
		}
	}
	return values
}

// ContainsKeyValue reports whether some entry's key and value both match.
func (m *Multimap) ContainsKeyValue(sm *StringMatcher, key, value NottableString) bool {
	for _, candidate := range m.GetAll(sm, key) {
		if sm.Matches(value, candidate.Value, false) {
			return true
		}
	}
	return false
}

// Size returns the distinct key count.
func (m *Multimap) Size() int { return len(m.Keys()) }

// IsEmpty reports whether the map holds no keys at all.
func (m *Multimap) IsEmpty() bool {
	return len(m.entries) == 0 && len(m.bareKeys) == 0
}

// Clear removes every entry.
func (m *Multimap) Clear() {
	m.entries = nil
	m.bareKeys = nil
}

// Entries returns the flat (key, value) pairs in insertion order.
func (m *Multimap) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// AllKeysNotted reports whether every key is negated. True for the empty
// map.
func (m *Multimap) AllKeysNotted() bool {
	for _, k := range m.Keys() {
		if !k.Not {
			return false
		}
	}
	return true
}

// AllKeysOptional reports whether every key is optional. True for the empty
// map.
func (m *Multimap) AllKeysOptional() bool {
	for _, k := range m.Keys() {
		if !k.Optional {
			return false
		}
	}
	return true
}

// keyMatches matches a candidate key against a matcher key pattern, ignoring
// the pattern's Not/Optional flags (those are containment-level concerns).
func keyMatches(sm *StringMatcher, pattern, candidate NottableString) bool {
	return sm.rawMatch(String(pattern.Value), candidate.Value, true)
}

// ContainsAll reports whether the candidate map (receiver) satisfies every
// requirement of the matcher map, under the given containment style.
//
// SUB_SET: each matcher entry must be found in the candidate; the candidate
// may carry extra keys and values. Notted keys require the key's absence,
// notted values require that no value under the key violates, optional keys
// may be absent entirely, bare keys require presence only.
//
// MATCHING_KEY: keys align one-to-one; every candidate value under a
// matched key must satisfy at least one matcher value, and a non-optional
// matcher key missing from the candidate fails.
//
// An empty matcher map always matches.
func (m *Multimap) ContainsAll(sm *StringMatcher, matcher *Multimap, style mock.KeyMatchStyle) bool {
	if matcher == nil || matcher.IsEmpty() {
		return true
	}
	if style == mock.KeyMatchMatchingKey {
		return m.containsAllMatchingKey(sm, matcher)
	}
	return m.containsAllSubSet(sm, matcher)
}

func (m *Multimap) containsAllSubSet(sm *StringMatcher, matcher *Multimap) bool {
	for _, key := range matcher.Keys() {
		matcherValues := matcher.valuesFor(key)

		if key.Not {
			// the candidate must not contain this key (with a violating
			// value, when values are specified)
			if m.containsViolation(sm, key, matcherValues) {
				return false
			}
			continue
		}

		candidateValues := m.GetAll(sm, key)
		if len(candidateValues) == 0 && !m.hasBareOrEntryKey(sm, key) {
			if key.Optional || allValuesNotted(matcherValues) {
				// absent key satisfies an optional or purely negative
				// requirement
				continue
			}
			return false
		}

		if !valuesSatisfied(sm, matcherValues, candidateValues) {
			return false
		}
	}
	return true
}

func (m *Multimap) containsAllMatchingKey(sm *StringMatcher, matcher *Multimap) bool {
	for _, key := range matcher.Keys() {
		matcherValues := matcher.valuesFor(key)
		candidateValues := m.GetAll(sm, key)
		if len(candidateValues) == 0 {
			if key.Optional {
				continue
			}
			return false
		}
		for _, candidate := range candidateValues {
			if !anyValueMatches(sm, matcherValues, candidate) {
				return false
			}
		}
	}
	return true
}

// containsViolation reports whether the candidate holds an entry forbidden
// by a notted matcher key.
func (m *Multimap) containsViolation(sm *StringMatcher, key NottableString, matcherValues []NottableString) bool {
	for _, e := range m.entries {
		if !keyMatches(sm, key, e.Key) {
			continue
		}
		if len(matcherValues) == 0 {
			return true
		}
		for _, v := range matcherValues {
			// compare against the value text; the key-level negation
			// already inverts the containment
			if sm.rawMatch(NottableString{Value: v.Value, Schema: v.Schema}, e.Value.Value, false) {
				return true
			}
		}
	}
	for _, bare := range m.bareKeys {
		if keyMatches(sm, key, bare) && len(matcherValues) == 0 {
			return true
		}
	}
	return false
}

func (m *Multimap) hasBareOrEntryKey(sm *StringMatcher, key NottableString) bool {
	for _, e := range m.entries {
		if keyMatches(sm, key, e.Key) {
			return true
		}
	}
	for _, bare := range m.bareKeys {
		if keyMatches(sm, key, bare) {
			return true
		}
	}
	return false
}

// valuesSatisfied checks every matcher value against the candidate values
// under one key: a positive value needs at least one candidate value to
// match, a notted value requires that every candidate value passes the
// negated comparison.
func valuesSatisfied(sm *StringMatcher, matcherValues, candidateValues []NottableString) bool {
	for _, mv := range matcherValues {
		if mv.Not {
			for _, cv := range candidateValues {
				if !sm.Matches(mv, cv.Value, false) {
					return false
				}
			}
			continue
		}
		found := false
		for _, cv := range candidateValues {
			if sm.Matches(mv, cv.Value, false) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func anyValueMatches(sm *StringMatcher, matcherValues []NottableString, candidate NottableString) bool {
	if len(matcherValues) == 0 {
		return true
	}
	for _, mv := range matcherValues {
		if sm.Matches(mv, candidate.Value, false) {
			return true
		}
	}
	return false
}

func allValuesNotted(values []NottableString) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if !v.Not {
			return false
		}
	}
	return true
}
