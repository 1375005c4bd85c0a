package matching

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/ohler55/ojg/jp"

	"github.com/expectd/expectd/pkg/mock"
)

// BodyMatcher is the compiled form of a BodyDefinition. Dispatch over the
// closed set of body types happens in one exhaustive switch so adding a
// variant is a compile-time exercise.
type BodyMatcher struct {
	def *mock.BodyDefinition
	sm  *StringMatcher
	log *slog.Logger

	// compiled at registration time, per variant
	params   *Multimap
	jsonPath jp.Expr
}

// CompileBody validates a body definition and compiles its patterns.
// Invalid schema, JSON, XML or path expressions are registration errors;
// an invalid regex is not (it degrades to literal comparison at match
// time).
func CompileBody(sm *StringMatcher, log *slog.Logger, def *mock.BodyDefinition) (*BodyMatcher, error) {
	if def == nil {
		return nil, nil
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	b := &BodyMatcher{def: def, sm: sm, log: log}
	switch def.Type {
	case mock.BodyJSON:
		var tree any
		if err := json.Unmarshal([]byte(def.Value), &tree); err != nil {
			return nil, fmt.Errorf("invalid JSON body matcher: %w", err)
		}
	case mock.BodyJSONSchema:
		if err := sm.ValidateSchema(def.Value); err != nil {
			return nil, err
		}
	case mock.BodyJSONPath:
		expr, err := jp.ParseString(def.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid JSONPath expression %q: %w", def.Value, err)
		}
		b.jsonPath = expr
	case mock.BodyXML:
		doc := etree.NewDocument()
		if err := doc.ReadFromString(def.Value); err != nil {
			return nil, fmt.Errorf("invalid XML body matcher: %w", err)
		}
	case mock.BodyXMLSchema:
		if err := validateXMLSchema(def.Value); err != nil {
			return nil, err
		}
	case mock.BodyXPath:
		if err := validateXPath(def.Value); err != nil {
			return nil, err
		}
	case mock.BodyParameters:
		params, err := MultimapFromEntries(def.Parameters)
		if err != nil {
			return nil, err
		}
		b.params = params
	}
	return b, nil
}

// Matches reports whether the candidate body satisfies the matcher. The
// content-type gate runs first; the variant's Not flag inverts the raw
// comparison result last. Matching is total.
func (b *BodyMatcher) Matches(body []byte, contentType string) bool {
	if b == nil || b.def == nil {
		return true
	}
	if b.def.Optional && len(body) == 0 {
		return true
	}
	if !mediaTypeMatches(b.def.ContentType, contentType) {
		return false
	}
	return b.rawMatch(body, contentType) != b.def.Not
}

func (b *BodyMatcher) rawMatch(body []byte, contentType string) bool {
	switch b.def.Type {
	case mock.BodyString:
		text := decodeBody(body, contentType)
		if b.def.SubString {
			return strings.Contains(text, b.def.Value)
		}
		return text == b.def.Value

	case mock.BodyRegex:
		text := decodeBody(body, contentType)
		if re := b.sm.compile(b.def.Value, false); re != nil {
			return re.MatchString(text)
		}
		return text == b.def.Value

	case mock.BodyJSON:
		matchType := b.def.MatchType
		if matchType == "" {
			matchType = mock.MatchOnlyMatchingFields
		}
		return jsonEquals([]byte(b.def.Value), body, matchType)

	case mock.BodyJSONSchema:
		schema, err := b.sm.compileSchema(b.def.Value)
		if err != nil {
			return false
		}
		var tree any
		if err := json.Unmarshal(body, &tree); err != nil {
			return false
		}
		return schema.Validate(tree) == nil

	case mock.BodyJSONPath:
		var tree any
		if err := json.Unmarshal(body, &tree); err != nil {
			return false
		}
		return len(b.jsonPath.Get(tree)) > 0

	case mock.BodyXML:
		return xmlEquals(b.def.Value, decodeBody(body, contentType))

	case mock.BodyXMLSchema:
		return xmlSchemaMatches(b.def.Value, decodeBody(body, contentType))

	case mock.BodyXPath:
		return xpathMatches(b.def.Value, decodeBody(body, contentType))

	case mock.BodyBinary:
		return bytes.Equal(b.def.Binary, body)

	case mock.BodyParameters:
		candidate, err := formParameters(body)
		if err != nil {
			return false
		}
		return candidate.ContainsAll(b.sm, b.params, mock.KeyMatchSubSet)
	}
	return false
}

// formParameters decodes a URL-encoded form body into a candidate multimap,
// preserving wire order.
func formParameters(body []byte) (*Multimap, error) {
	m := NewMultimap()
	for _, pair := range strings.Split(string(body), "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		decodedName, err := url.QueryUnescape(name)
		if err != nil {
			return nil, err
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			return nil, err
		}
		_ = m.Put(String(decodedName), String(decodedValue))
	}
	return m, nil
}
