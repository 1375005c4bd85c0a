package matching

import (
	"mime"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// decodeBody turns raw body bytes into a string for text-mode comparison.
// A charset declared in the content type wins; otherwise valid UTF-8 passes
// through and anything else is decoded as ISO-8859-1, the HTTP default for
// bodies without UTF-8 markers.
func decodeBody(body []byte, contentType string) string {
	if name := charsetOf(contentType); name != "" {
		if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
			if decoded, err := enc.NewDecoder().Bytes(body); err == nil {
				return string(decoded)
			}
		}
	}
	if utf8.Valid(body) {
		return string(body)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// mediaTypeMatches compares two content types by type/subtype, ignoring
// parameters and case.
func mediaTypeMatches(expected, actual string) bool {
	if expected == "" {
		return true
	}
	expectedType, _, err := mime.ParseMediaType(expected)
	if err != nil {
		return false
	}
	actualType, _, err := mime.ParseMediaType(actual)
	if err != nil {
		return false
	}
	return expectedType == actualType
}
