package matching

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/expectd/expectd/pkg/logging"
)

// DefaultPatternCacheSize bounds the compiled regex and schema caches.
// Expectation patterns are finite and long-lived, but dynamically generated
// patterns must not grow memory without bound.
const DefaultPatternCacheSize = 1024

type compiledPattern struct {
	re  *regexp.Regexp
	bad bool
}

// StringMatcher decides whether a candidate string satisfies a
// NottableString pattern. Patterns that compile as regular expressions are
// matched anchored over the whole candidate; schema patterns validate the
// candidate against an inline JSON schema; everything else is literal
// comparison. Compiled patterns are cached in bounded LRU caches.
//
// Matching never fails: an invalid regex degrades to literal comparison
// with a warning, an invalid schema never validates.
type StringMatcher struct {
	log      *slog.Logger
	patterns *lru.Cache[string, *compiledPattern]
	schemas  *lru.Cache[string, *jsonschema.Schema]
}

// NewStringMatcher creates a StringMatcher with caches of the given size.
// A non-positive size falls back to DefaultPatternCacheSize.
func NewStringMatcher(log *slog.Logger, cacheSize int) *StringMatcher {
	if log == nil {
		log = logging.Nop()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultPatternCacheSize
	}
	patterns, _ := lru.New[string, *compiledPattern](cacheSize)
	schemas, _ := lru.New[string, *jsonschema.Schema](cacheSize)
	return &StringMatcher{log: log, patterns: patterns, schemas: schemas}
}

// Matches reports whether candidate satisfies the matcher pattern, applying
// the pattern's Not flag last. ignoreCase selects case-insensitive literal
// comparison (header, cookie and parameter names).
func (m *StringMatcher) Matches(matcher NottableString, candidate string, ignoreCase bool) bool {
	return m.rawMatch(matcher, candidate, ignoreCase) != matcher.Not
}

// rawMatch is Matches without the Not inversion.
func (m *StringMatcher) rawMatch(matcher NottableString, candidate string, ignoreCase bool) bool {
	if matcher.IsBlank() {
		return true
	}
	if matcher.Schema {
		return m.matchesSchema(matcher.Value, candidate)
	}
	if ignoreCase {
		if strings.EqualFold(matcher.Value, candidate) {
			return true
		}
	} else if matcher.Value == candidate {
		return true
	}
	if re := m.compile(matcher.Value, ignoreCase); re != nil {
		return re.MatchString(candidate)
	}
	return false
}

// compile returns the anchored compiled pattern, or nil when the pattern is
// not valid regex syntax (literal comparison already happened).
func (m *StringMatcher) compile(pattern string, ignoreCase bool) *regexp.Regexp {
	key := pattern
	if ignoreCase {
		key = "(?i)" + pattern
	}
	if cached, ok := m.patterns.Get(key); ok {
		if cached.bad {
			return nil
		}
		return cached.re
	}
	expr := `\A(?:` + pattern + `)\z`
	if ignoreCase {
		expr = `(?i)` + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		// Fall back to the literal comparison the caller already did.
		m.log.Warn("invalid regex in matcher, using literal comparison",
			"pattern", pattern, "error", err)
		m.patterns.Add(key, &compiledPattern{bad: true})
		return nil
	}
	m.patterns.Add(key, &compiledPattern{re: re})
	return re
}

// matchesSchema validates candidate against an inline JSON schema. The
// candidate is tried as parsed JSON first, then as a plain string: "1234"
// satisfies both {"type": "integer"} and {"type": "string"} schemas.
func (m *StringMatcher) matchesSchema(schema, candidate string) bool {
	compiled, err := m.compileSchema(schema)
	if err != nil {
		m.log.Warn("invalid JSON schema in matcher", "schema", schema, "error", err)
		return false
	}
	var value any
	if err := json.Unmarshal([]byte(candidate), &value); err == nil {
		if compiled.Validate(value) == nil {
			return true
		}
	}
	return compiled.Validate(candidate) == nil
}

func (m *StringMatcher) compileSchema(schema string) (*jsonschema.Schema, error) {
	if cached, ok := m.schemas.Get(schema); ok {
		return cached, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("inline://schema.json", strings.NewReader(schema)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile("inline://schema.json")
	if err != nil {
		return nil, err
	}
	m.schemas.Add(schema, compiled)
	return compiled, nil
}

// ValidateSchema checks a schema document at registration time.
func (m *StringMatcher) ValidateSchema(schema string) error {
	if _, err := m.compileSchema(schema); err != nil {
		return fmt.Errorf("invalid JSON schema: %w", err)
	}
	return nil
}
