package matching

import (
	"encoding/json"
	"reflect"

	"github.com/expectd/expectd/pkg/mock"
)

// jsonEquals compares two JSON documents under the given match type.
// Unparseable input on either side is a non-match, never an error.
func jsonEquals(matcher, candidate []byte, matchType mock.JSONMatchType) bool {
	var matcherTree, candidateTree any
	if err := json.Unmarshal(matcher, &matcherTree); err != nil {
		return false
	}
	if err := json.Unmarshal(candidate, &candidateTree); err != nil {
		return false
	}
	if matchType == mock.MatchStrict {
		return reflect.DeepEqual(matcherTree, candidateTree)
	}
	return jsonSubset(matcherTree, candidateTree)
}

// jsonSubset implements ONLY_MATCHING_FIELDS: every field present in the
// matcher tree must be present and equal in the candidate tree; extra
// candidate fields and extra array elements are ignored.
func jsonSubset(matcher, candidate any) bool {
	switch mv := matcher.(type) {
	case map[string]any:
		cv, ok := candidate.(map[string]any)
		if !ok {
			return false
		}
		for key, value := range mv {
			child, present := cv[key]
			if !present || !jsonSubset(value, child) {
				return false
			}
		}
		return true
	case []any:
		cv, ok := candidate.([]any)
		if !ok || len(cv) < len(mv) {
			return false
		}
		for i, value := range mv {
			if !jsonSubset(value, cv[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(matcher, candidate)
	}
}
