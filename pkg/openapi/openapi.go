// Package openapi expands OpenAPI documents into expectations. Each
// operation becomes one expectation whose matcher is derived from the
// operation's path template and parameters, and whose response is built from
// the first documented success response.
package openapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/expectd/expectd/internal/id"
	"github.com/expectd/expectd/pkg/mock"
)

// Load reads and validates an OpenAPI document from a file or URL.
func Load(location string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	doc, err := loader.LoadFromFile(location)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// LoadFromData parses and validates an in-memory OpenAPI document.
func LoadFromData(data []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// Expand converts every operation of the document into an expectation.
// Parameter containment uses MATCHING_KEY so documented parameters are
// checked one-to-one, matching how API contracts read. Expectations are
// returned in path, then method order.
func Expand(doc *openapi3.T) ([]*mock.Expectation, error) {
	if doc == nil || doc.Paths == nil {
		return nil, fmt.Errorf("openapi document has no paths")
	}

	paths := make([]string, 0, doc.Paths.Len())
	for path := range doc.Paths.Map() {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var exps []*mock.Expectation
	for _, path := range paths {
		item := doc.Paths.Value(path)
		operations := item.Operations()
		methods := make([]string, 0, len(operations))
		for method := range operations {
			methods = append(methods, method)
		}
		sort.Strings(methods)

		for _, method := range methods {
			exp, err := operationExpectation(path, method, operations[method])
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", method, path, err)
			}
			exps = append(exps, exp)
		}
	}
	return exps, nil
}

func operationExpectation(path, method string, op *openapi3.Operation) (*mock.Expectation, error) {
	def := &mock.RequestDefinition{
		Method:        method,
		Path:          path,
		KeyMatchStyle: mock.KeyMatchMatchingKey,
	}

	for _, ref := range op.Parameters {
		p := ref.Value
		if p == nil {
			continue
		}
		name := p.Name
		if !p.Required && p.In != openapi3.ParameterInPath {
			name = "?" + name
		}
		pattern := schemaPattern(p.Schema)
		switch p.In {
		case openapi3.ParameterInPath:
			def.PathParams = append(def.PathParams, mock.KeyToValues{Name: name, Values: []string{pattern}})
		case openapi3.ParameterInQuery:
			def.QueryParams = append(def.QueryParams, mock.KeyToValues{Name: name, Values: []string{pattern}})
		case openapi3.ParameterInHeader:
			def.Headers = append(def.Headers, mock.KeyToValues{Name: name, Values: []string{pattern}})
		case openapi3.ParameterInCookie:
			def.Cookies = append(def.Cookies, mock.KeyToValues{Name: name, Values: []string{pattern}})
		}
	}

	response, err := successResponse(op)
	if err != nil {
		return nil, err
	}

	expID := op.OperationID
	if expID == "" {
		expID = id.UUID()
	}
	exp := mock.NewExpectation(def).WithID(expID).ThenRespond(response)
	exp.Source = mock.SourceOpenAPI
	return exp, nil
}

// schemaPattern derives a value regex from a parameter schema. Anything the
// schema leaves open matches any value.
func schemaPattern(ref *openapi3.SchemaRef) string {
	if ref == nil || ref.Value == nil {
		return ".*"
	}
	schema := ref.Value
	if len(schema.Enum) > 0 {
		parts := make([]string, 0, len(schema.Enum))
		for _, v := range schema.Enum {
			parts = append(parts, fmt.Sprintf("%v", v))
		}
		return strings.Join(parts, "|")
	}
	if schema.Pattern != "" {
		return schema.Pattern
	}
	types := schema.Type
	switch {
	case types != nil && types.Is(openapi3.TypeInteger):
		return "-?[0-9]+"
	case types != nil && types.Is(openapi3.TypeNumber):
		return `-?[0-9]+(\.[0-9]+)?`
	case types != nil && types.Is(openapi3.TypeBoolean):
		return "true|false"
	default:
		return ".*"
	}
}

// successResponse builds the canned response from the lowest documented 2xx
// status, falling back to an empty 200.
func successResponse(op *openapi3.Operation) (*mock.ResponseAction, error) {
	action := &mock.ResponseAction{StatusCode: 200}
	if op.Responses == nil {
		return action, nil
	}

	statuses := make([]int, 0, op.Responses.Len())
	for code := range op.Responses.Map() {
		if n, err := strconv.Atoi(code); err == nil && n >= 200 && n < 300 {
			statuses = append(statuses, n)
		}
	}
	if len(statuses) == 0 {
		return action, nil
	}
	sort.Ints(statuses)
	action.StatusCode = statuses[0]

	ref := op.Responses.Status(action.StatusCode)
	if ref == nil || ref.Value == nil {
		return action, nil
	}
	media := ref.Value.Content.Get("application/json")
	if media == nil {
		return action, nil
	}
	example := mediaExample(media)
	if example == nil {
		return action, nil
	}
	body, err := json.Marshal(example)
	if err != nil {
		return nil, fmt.Errorf("marshal response example: %w", err)
	}
	action.Body = string(body)
	action.Headers = map[string]string{"Content-Type": "application/json"}
	return action, nil
}

func mediaExample(media *openapi3.MediaType) any {
	if media.Example != nil {
		return media.Example
	}
	for _, ref := range media.Examples {
		if ref.Value != nil && ref.Value.Value != nil {
			return ref.Value.Value
		}
	}
	if media.Schema != nil && media.Schema.Value != nil && media.Schema.Value.Example != nil {
		return media.Schema.Value.Example
	}
	return nil
}
