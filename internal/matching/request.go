package matching

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/expectd/expectd/pkg/logging"
	"github.com/expectd/expectd/pkg/mock"
)

// RequestMatcher is the compiled predicate over a full decoded request. A
// nil sub-matcher is a wildcard; the composed result is the AND of all
// present sub-matchers, inverted when the definition's Not flag is set.
type RequestMatcher struct {
	def *mock.RequestDefinition
	sm  *StringMatcher
	log *slog.Logger

	method NottableString
	path   NottableString
	// pathTemplate is set when the path carries {name} placeholders; named
	// captures become path parameters of the candidate.
	pathTemplate *regexp.Regexp

	pathParams  *Multimap
	queryParams *Multimap
	headers     *Multimap
	cookies     *Multimap
	body        *BodyMatcher
}

// Compile validates a request definition and builds its matcher.
// Registration-time errors (bad schema, bad JSON, duplicate optional-key
// values) are returned to the caller; invalid regex is not an error and
// degrades to literal comparison.
func Compile(sm *StringMatcher, log *slog.Logger, def *mock.RequestDefinition) (*RequestMatcher, error) {
	if log == nil {
		log = logging.Nop()
	}
	m := &RequestMatcher{def: def, sm: sm, log: log}
	if def == nil {
		return m, nil
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	m.method = Parse(def.Method)
	m.path = Parse(def.Path)
	if strings.Contains(m.path.Value, "{") {
		template, err := compilePathTemplate(m.path.Value)
		if err != nil {
			return nil, err
		}
		m.pathTemplate = template
	}
	var err error
	if m.pathParams, err = MultimapFromEntries(def.PathParams); err != nil {
		return nil, err
	}
	if m.queryParams, err = MultimapFromEntries(def.QueryParams); err != nil {
		return nil, err
	}
	if m.headers, err = MultimapFromEntries(def.Headers); err != nil {
		return nil, err
	}
	if m.cookies, err = MultimapFromEntries(def.Cookies); err != nil {
		return nil, err
	}
	if m.body, err = CompileBody(sm, log, def.Body); err != nil {
		return nil, err
	}
	return m, nil
}

// Definition returns the definition this matcher was compiled from.
func (m *RequestMatcher) Definition() *mock.RequestDefinition { return m.def }

// Matches reports whether the candidate request satisfies the matcher.
// Matching is total and side-effect free; sub-matchers short-circuit on the
// first failure.
func (m *RequestMatcher) Matches(req *mock.HTTPRequest) bool {
	if m == nil || m.def == nil {
		return true
	}
	if req == nil {
		return m.def.Not
	}
	// expectation/admin traffic never crosses planes
	if m.def.ControlPlane != req.ControlPlane {
		return false
	}
	return m.matchesAll(req) != m.def.Not
}

func (m *RequestMatcher) matchesAll(req *mock.HTTPRequest) bool {
	if !m.method.IsBlank() && !m.sm.Matches(m.method, req.Method, true) {
		return false
	}

	pathCaptures, pathOK := m.matchesPath(req.Path)
	if !pathOK {
		return false
	}

	if m.def.KeepAlive != nil && *m.def.KeepAlive != req.KeepAlive {
		return false
	}
	if m.def.Secure != nil && *m.def.Secure != req.Secure {
		return false
	}

	style := m.def.Style()
	if !m.pathParams.IsEmpty() {
		candidate := CandidateFromEntries(req.PathParams)
		for name, value := range pathCaptures {
			_ = candidate.Put(String(name), String(value))
		}
		if !candidate.ContainsAll(m.sm, m.pathParams, style) {
			return false
		}
	}
	if !CandidateFromEntries(req.QueryParams).ContainsAll(m.sm, m.queryParams, style) {
		return false
	}
	if !CandidateFromEntries(req.Headers).ContainsAll(m.sm, m.headers, style) {
		return false
	}
	if !CandidateFromEntries(req.Cookies).ContainsAll(m.sm, m.cookies, style) {
		return false
	}
	return m.body.Matches(req.Body, req.ContentType)
}

// matchesPath applies either the {name} template or the plain string
// matcher, returning any named captures.
func (m *RequestMatcher) matchesPath(path string) (map[string]string, bool) {
	if m.pathTemplate != nil {
		match := m.pathTemplate.FindStringSubmatch(path)
		if match == nil {
			return nil, m.path.Not
		}
		captures := make(map[string]string)
		for i, name := range m.pathTemplate.SubexpNames() {
			if i > 0 && name != "" && i < len(match) {
				captures[name] = match[i]
			}
		}
		return captures, !m.path.Not
	}
	if m.path.IsBlank() {
		return nil, true
	}
	return nil, m.sm.Matches(m.path, path, false)
}

// MatchesDefinition reports whether a stored request definition intersects
// this matcher, used when clearing by selector. The stored definition is
// read as a literal candidate: its first values stand in for a request.
func (m *RequestMatcher) MatchesDefinition(stored *mock.RequestDefinition) bool {
	if m == nil || m.def == nil || stored == nil {
		return true
	}
	return m.Matches(DefinitionAsCandidate(stored))
}

// DefinitionAsCandidate projects a matcher-side definition onto a literal
// candidate request so definitions can be intersected. Prefix sugar is
// stripped; notted entries are dropped since they assert absence.
func DefinitionAsCandidate(def *mock.RequestDefinition) *mock.HTTPRequest {
	req := &mock.HTTPRequest{
		Method: Parse(def.Method).Value,
		Path:   Parse(def.Path).Value,
	}
	project := func(entries mock.Entries) mock.Entries {
		var out mock.Entries
		for _, kv := range entries {
			key := Parse(kv.Name)
			if key.Not {
				continue
			}
			values := make([]string, 0, len(kv.Values))
			for _, v := range kv.Values {
				parsed := Parse(v)
				if !parsed.Not {
					values = append(values, parsed.Value)
				}
			}
			out = append(out, mock.KeyToValues{Name: key.Value, Values: values})
		}
		return out
	}
	req.PathParams = project(def.PathParams)
	req.QueryParams = project(def.QueryParams)
	req.Headers = project(def.Headers)
	req.Cookies = project(def.Cookies)
	if def.Body != nil {
		switch def.Body.Type {
		case mock.BodyString, mock.BodyJSON, mock.BodyXML:
			req.Body = []byte(def.Body.Value)
		case mock.BodyBinary:
			req.Body = def.Body.Binary
		}
	}
	req.ControlPlane = def.ControlPlane
	return req
}

// compilePathTemplate turns a "/users/{id}" style path into an anchored
// regex with named capture groups. Literal segments are quoted; a
// placeholder matches one path segment.
func compilePathTemplate(path string) (*regexp.Regexp, error) {
	var expr strings.Builder
	expr.WriteString(`\A`)
	rest := path
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			expr.WriteString(regexp.QuoteMeta(rest))
			break
		}
		closing := strings.Index(rest[open:], "}")
		if closing < 0 {
			return nil, fmt.Errorf("unbalanced '{' in path template %q", path)
		}
		name := rest[open+1 : open+closing]
		if name == "" {
			return nil, fmt.Errorf("empty placeholder in path template %q", path)
		}
		expr.WriteString(regexp.QuoteMeta(rest[:open]))
		expr.WriteString(`(?P<` + name + `>[^/]+)`)
		rest = rest[open+closing+1:]
	}
	expr.WriteString(`\z`)
	template, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("invalid path template %q: %w", path, err)
	}
	return template, nil
}
