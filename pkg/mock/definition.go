package mock

import (
	"encoding/base64"
	"fmt"
)

// KeyMatchStyle selects the containment algorithm used for the multi-valued
// matcher maps (headers, cookies, query and path parameters).
type KeyMatchStyle string

const (
	// KeyMatchSubSet requires every matcher entry to be satisfied by the
	// candidate; the candidate may carry extra keys and values.
	KeyMatchSubSet KeyMatchStyle = "SUB_SET"

	// KeyMatchMatchingKey aligns keys one-to-one: every candidate value
	// under a matched key must satisfy at least one matcher value.
	// OpenAPI-derived expectations use this style.
	KeyMatchMatchingKey KeyMatchStyle = "MATCHING_KEY"
)

// BodyType discriminates the body matcher union.
type BodyType string

const (
	BodyString     BodyType = "STRING"
	BodyRegex      BodyType = "REGEX"
	BodyJSON       BodyType = "JSON"
	BodyJSONSchema BodyType = "JSON_SCHEMA"
	BodyJSONPath   BodyType = "JSON_PATH"
	BodyXML        BodyType = "XML"
	BodyXMLSchema  BodyType = "XML_SCHEMA"
	BodyXPath      BodyType = "XPATH"
	BodyBinary     BodyType = "BINARY"
	BodyParameters BodyType = "PARAMETERS"
)

// JSONMatchType selects the comparison semantics for BodyJSON matchers.
type JSONMatchType string

const (
	// MatchStrict requires structural deep equality: array order matters
	// and object key sets must match exactly.
	MatchStrict JSONMatchType = "STRICT"

	// MatchOnlyMatchingFields only requires fields present in the matcher
	// document to be present and equal in the candidate.
	MatchOnlyMatchingFields JSONMatchType = "ONLY_MATCHING_FIELDS"
)

// BodyDefinition declares how a request body must look for an expectation to
// match. Exactly one variant is active, selected by Type. The zero MatchType
// on a JSON body means ONLY_MATCHING_FIELDS.
type BodyDefinition struct {
	Type BodyType `json:"type" yaml:"type"`

	// Value holds the pattern text for STRING, REGEX, JSON, JSON_SCHEMA,
	// JSON_PATH, XML, XML_SCHEMA and XPATH bodies.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// Binary holds the expected bytes for BINARY bodies (base64 in JSON).
	Binary []byte `json:"base64Bytes,omitempty" yaml:"base64Bytes,omitempty"`

	// Parameters holds the expected form parameters for PARAMETERS bodies.
	Parameters Entries `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// MatchType selects STRICT or ONLY_MATCHING_FIELDS for JSON bodies.
	MatchType JSONMatchType `json:"matchType,omitempty" yaml:"matchType,omitempty"`

	// SubString makes a STRING body match on containment instead of
	// equality.
	SubString bool `json:"subString,omitempty" yaml:"subString,omitempty"`

	// ContentType, when set, gates the body check: the candidate's declared
	// content type must match before the body comparison runs.
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`

	// Not inverts the raw boolean result of the variant comparison.
	Not bool `json:"not,omitempty" yaml:"not,omitempty"`

	// Optional makes an absent candidate body match.
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Validate checks the declarative invariants that can be verified without
// compiling the matcher (pattern compilation errors surface at upsert time
// in internal/matching).
func (b *BodyDefinition) Validate() error {
	switch b.Type {
	case BodyString, BodyRegex, BodyJSON, BodyJSONSchema, BodyJSONPath,
		BodyXML, BodyXMLSchema, BodyXPath:
		if b.Value == "" {
			return fmt.Errorf("body type %s requires a value", b.Type)
		}
	case BodyBinary:
		if len(b.Binary) == 0 {
			return fmt.Errorf("body type BINARY requires base64Bytes")
		}
	case BodyParameters:
		if len(b.Parameters) == 0 {
			return fmt.Errorf("body type PARAMETERS requires parameters")
		}
	default:
		return fmt.Errorf("unknown body type %q", b.Type)
	}
	if b.MatchType != "" && b.Type != BodyJSON {
		return fmt.Errorf("matchType is only valid for JSON bodies, not %s", b.Type)
	}
	return nil
}

// BinaryBase64 returns the expected binary bytes encoded as base64, for
// display purposes.
func (b *BodyDefinition) BinaryBase64() string {
	return base64.StdEncoding.EncodeToString(b.Binary)
}

// RequestDefinition is the declarative, "nottable" pattern over every
// wire-level request dimension. Empty fields are wildcards. Matcher-side
// names and values may carry a "!" prefix (negate) and map keys a "?" prefix
// (optional); candidate request values are never interpreted this way.
type RequestDefinition struct {
	Method      string  `json:"method,omitempty" yaml:"method,omitempty"`
	Path        string  `json:"path,omitempty" yaml:"path,omitempty"`
	PathParams  Entries `json:"pathParameters,omitempty" yaml:"pathParameters,omitempty"`
	QueryParams Entries `json:"queryStringParameters,omitempty" yaml:"queryStringParameters,omitempty"`
	Headers     Entries `json:"headers,omitempty" yaml:"headers,omitempty"`
	Cookies     Entries `json:"cookies,omitempty" yaml:"cookies,omitempty"`

	Body *BodyDefinition `json:"body,omitempty" yaml:"body,omitempty"`

	// KeepAlive and Secure are tri-state: nil means "don't care".
	KeepAlive *bool `json:"keepAlive,omitempty" yaml:"keepAlive,omitempty"`
	Secure    *bool `json:"secure,omitempty" yaml:"secure,omitempty"`

	// KeyMatchStyle applies to all multimap fields; empty means SUB_SET.
	KeyMatchStyle KeyMatchStyle `json:"keyMatchStyle,omitempty" yaml:"keyMatchStyle,omitempty"`

	// Not inverts the whole composed match.
	Not bool `json:"not,omitempty" yaml:"not,omitempty"`

	// ControlPlane restricts the matcher to administrative traffic.
	ControlPlane bool `json:"-" yaml:"-"`
}

// Style returns the effective key match style.
func (d *RequestDefinition) Style() KeyMatchStyle {
	if d.KeyMatchStyle == KeyMatchMatchingKey {
		return KeyMatchMatchingKey
	}
	return KeyMatchSubSet
}

// Validate checks declarative invariants of the definition.
func (d *RequestDefinition) Validate() error {
	if d == nil {
		return nil
	}
	switch d.KeyMatchStyle {
	case "", KeyMatchSubSet, KeyMatchMatchingKey:
	default:
		return fmt.Errorf("unknown keyMatchStyle %q", d.KeyMatchStyle)
	}
	if d.Body != nil {
		if err := d.Body.Validate(); err != nil {
			return err
		}
	}
	return nil
}
