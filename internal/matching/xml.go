package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// xmlEquals compares two XML documents structurally: element names,
// attributes (order-independent) and trimmed text must agree; insignificant
// whitespace is ignored. Unparseable input on either side is a non-match.
func xmlEquals(matcher, candidate string) bool {
	matcherDoc := etree.NewDocument()
	if err := matcherDoc.ReadFromString(matcher); err != nil {
		return false
	}
	candidateDoc := etree.NewDocument()
	if err := candidateDoc.ReadFromString(candidate); err != nil {
		return false
	}
	return elementsEqual(matcherDoc.Root(), candidateDoc.Root())
}

func elementsEqual(a, b *etree.Element) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Tag != b.Tag || a.Space != b.Space {
		return false
	}
	if strings.TrimSpace(a.Text()) != strings.TrimSpace(b.Text()) {
		return false
	}
	if !attributesEqual(a.Attr, b.Attr) {
		return false
	}
	aChildren, bChildren := a.ChildElements(), b.ChildElements()
	if len(aChildren) != len(bChildren) {
		return false
	}
	for i := range aChildren {
		if !elementsEqual(aChildren[i], bChildren[i]) {
			return false
		}
	}
	return true
}

func attributesEqual(a, b []etree.Attr) bool {
	if len(a) != len(b) {
		return false
	}
	canon := func(attrs []etree.Attr) []string {
		out := make([]string, 0, len(attrs))
		for _, attr := range attrs {
			out = append(out, attr.Space+":"+attr.Key+"="+attr.Value)
		}
		sort.Strings(out)
		return out
	}
	ac, bc := canon(a), canon(b)
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}

// xpathMatches reports whether the XPath expression selects anything in the
// candidate document.
func xpathMatches(expr, candidate string) bool {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(candidate); err != nil {
		return false
	}
	path, err := etree.CompilePath(expr)
	if err != nil {
		return false
	}
	return len(doc.FindElementsPath(path)) > 0
}

// validateXPath checks an XPath expression at registration time.
func validateXPath(expr string) error {
	if _, err := etree.CompilePath(expr); err != nil {
		return fmt.Errorf("invalid XPath expression %q: %w", expr, err)
	}
	return nil
}

// xmlSchemaMatches validates the candidate against an XML schema document.
// Full XSD validation is out of reach without a schema processor; the check
// enforces well-formedness plus the schema's declared root element name,
// which covers the wire-level contract the engine needs.
func xmlSchemaMatches(schema, candidate string) bool {
	root, err := schemaRootElement(schema)
	if err != nil {
		return false
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(candidate); err != nil {
		return false
	}
	if doc.Root() == nil {
		return false
	}
	if root != "" && doc.Root().Tag != root {
		return false
	}
	return true
}

// schemaRootElement parses an XSD document and returns the name of its
// top-level element declaration ("" when the schema declares none).
func schemaRootElement(schema string) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(schema); err != nil {
		return "", err
	}
	root := doc.Root()
	if root == nil || root.Tag != "schema" {
		return "", fmt.Errorf("not an XML schema document")
	}
	for _, child := range root.ChildElements() {
		if child.Tag == "element" {
			if name := child.SelectAttrValue("name", ""); name != "" {
				return name, nil
			}
		}
	}
	return "", nil
}

// validateXMLSchema checks an XSD document at registration time.
func validateXMLSchema(schema string) error {
	if _, err := schemaRootElement(schema); err != nil {
		return fmt.Errorf("invalid XML schema: %w", err)
	}
	return nil
}
