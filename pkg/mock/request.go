package mock

import (
	"mime"
	"net/http"
	"sort"
	"strings"
	"time"
)

// KeyToValues is one entry of an ordered multi-valued map: a name with the
// values recorded under it, in wire order. It is used both for declarative
// matcher entries (where name and values may carry "!"/"?" prefixes) and for
// decoded candidate requests (where everything is literal).
type KeyToValues struct {
	Name   string   `json:"name" yaml:"name"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
}

// Entries is an ordered list of KeyToValues preserving insertion order and
// allowing repeated names.
type Entries []KeyToValues

// Add appends values under name, merging into an existing entry when the
// name was already recorded.
func (e *Entries) Add(name string, values ...string) {
	for i := range *e {
		if (*e)[i].Name == name {
			(*e)[i].Values = append((*e)[i].Values, values...)
			return
		}
	}
	*e = append(*e, KeyToValues{Name: name, Values: values})
}

// Get returns the first value recorded under name, matching the name
// case-insensitively. Returns "" when absent.
func (e Entries) Get(name string) string {
	for _, kv := range e {
		if strings.EqualFold(kv.Name, name) && len(kv.Values) > 0 {
			return kv.Values[0]
		}
	}
	return ""
}

// GetAll returns every value recorded under name (case-insensitive).
func (e Entries) GetAll(name string) []string {
	var all []string
	for _, kv := range e {
		if strings.EqualFold(kv.Name, name) {
			all = append(all, kv.Values...)
		}
	}
	return all
}

// EntriesFromMap converts a plain map into Entries with deterministic
// (sorted-name) order. Convenient for tests and config decoding.
func EntriesFromMap(m map[string][]string) Entries {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make(Entries, 0, len(m))
	for _, name := range names {
		entries = append(entries, KeyToValues{Name: name, Values: m[name]})
	}
	return entries
}

// HTTPRequest is a fully decoded inbound request as handed to the engine by
// the transport layer. All fields are literal values; no "!"/"?" prefix
// interpretation happens on this side.
type HTTPRequest struct {
	Method      string  `json:"method,omitempty"`
	Path        string  `json:"path,omitempty"`
	PathParams  Entries `json:"pathParameters,omitempty"`
	QueryParams Entries `json:"queryStringParameters,omitempty"`
	Headers     Entries `json:"headers,omitempty"`
	Cookies     Entries `json:"cookies,omitempty"`
	Body        []byte  `json:"body,omitempty"`
	ContentType string  `json:"contentType,omitempty"`
	KeepAlive   bool    `json:"keepAlive,omitempty"`
	Secure      bool    `json:"secure,omitempty"`

	// ClientAddress is the remote socket address the request arrived from.
	ClientAddress string `json:"clientAddress,omitempty"`

	// ControlPlane marks administrative traffic. Data-plane expectations
	// never match control-plane requests and vice versa.
	ControlPlane bool `json:"-"`

	// Received is when the transport handed the request over.
	Received time.Time `json:"-"`
}

// Header returns the first value of the named header, case-insensitively.
func (r *HTTPRequest) Header(name string) string {
	return r.Headers.Get(name)
}

// BodyCharset returns the charset parameter of the declared content type,
// or "" when none is declared.
func (r *HTTPRequest) BodyCharset() string {
	if r.ContentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// FromHTTP decodes a net/http request into an HTTPRequest. The body must
// already have been read by the caller; transport-level concerns (TLS
// handshake, protocol version) stay with the transport.
func FromHTTP(r *http.Request, body []byte) *HTTPRequest {
	req := &HTTPRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Body:          body,
		ContentType:   r.Header.Get("Content-Type"),
		KeepAlive:     !r.Close,
		Secure:        r.TLS != nil,
		ClientAddress: r.RemoteAddr,
		Received:      time.Now(),
	}
	for name, values := range r.URL.Query() {
		req.QueryParams.Add(name, values...)
	}
	// http.Header loses wire order across names; order within a name is kept.
	for _, name := range sortedHeaderNames(r.Header) {
		req.Headers.Add(name, r.Header[name]...)
	}
	for _, c := range r.Cookies() {
		req.Cookies.Add(c.Name, c.Value)
	}
	return req
}

func sortedHeaderNames(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
