package requestlog

import (
	"time"

	"github.com/expectd/expectd/internal/id"
	"github.com/expectd/expectd/pkg/mock"
)

// maxRecordedBody caps how much request body is kept per entry.
const maxRecordedBody = 10 * 1024

// Entry is one recorded request with its match outcome.
type Entry struct {
	// ID is a unique identifier for the log entry.
	ID string `json:"id"`

	// Received is when the request arrived.
	Received time.Time `json:"received"`

	// Request is the decoded request, body truncated to maxRecordedBody.
	Request *mock.HTTPRequest `json:"request"`

	// BodyTruncated marks that the recorded body is incomplete.
	BodyTruncated bool `json:"bodyTruncated,omitempty"`

	// ExpectationID is the expectation that matched, "" for unmatched
	// requests.
	ExpectationID string `json:"expectationId,omitempty"`

	// ResponseStatus is the status code the engine answered with.
	ResponseStatus int `json:"responseStatus,omitempty"`

	// Duration is how long handling took.
	Duration time.Duration `json:"durationNs,omitempty"`
}

// NewEntry records a request and its match outcome, truncating oversized
// bodies. The request is copied shallowly; the caller must not mutate it
// afterwards.
func NewEntry(req *mock.HTTPRequest, expectationID string) *Entry {
	recorded := *req
	if len(recorded.Body) > maxRecordedBody {
		recorded.Body = recorded.Body[:maxRecordedBody]
	}
	received := req.Received
	if received.IsZero() {
		received = time.Now()
	}
	return &Entry{
		ID:            id.Short(),
		Received:      received,
		Request:       &recorded,
		BodyTruncated: len(req.Body) > maxRecordedBody,
		ExpectationID: expectationID,
	}
}

// Matched reports whether the entry's request hit an expectation.
func (e *Entry) Matched() bool {
	return e.ExpectationID != ""
}
