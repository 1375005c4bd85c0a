package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/expectd/expectd/pkg/mock"
	"github.com/expectd/expectd/pkg/requestlog"
)

// controlAPI is the expectation management surface, mounted under the
// configured control path prefix.
type controlAPI struct {
	engine *Engine
	mux    *http.ServeMux
}

func newControlAPI(e *Engine) *controlAPI {
	c := &controlAPI{engine: e, mux: http.NewServeMux()}
	prefix := e.cfg.ControlPathPrefix
	c.mux.HandleFunc(prefix+"/expectation", c.handleExpectation)
	c.mux.HandleFunc(prefix+"/clear", c.handleClear)
	c.mux.HandleFunc(prefix+"/reset", c.handleReset)
	c.mux.HandleFunc(prefix+"/retrieve", c.handleRetrieve)
	c.mux.HandleFunc(prefix+"/verify", c.handleVerify)
	c.mux.HandleFunc(prefix+"/verifySequence", c.handleVerifySequence)
	c.mux.HandleFunc(prefix+"/status", c.handleStatus)
	return c
}

func (c *controlAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mux.ServeHTTP(w, r)
}

// handleExpectation upserts one expectation or a batch. The batch is atomic:
// one invalid expectation rejects the whole request.
func (c *controlAPI) handleExpectation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	exps, err := decodeExpectations(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stored, err := c.engine.store.Upsert(exps...)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// decodeExpectations accepts a single expectation object or an array.
func decodeExpectations(body []byte) ([]*mock.Expectation, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("request body is empty")
	}
	if strings.HasPrefix(trimmed, "[") {
		var exps []*mock.Expectation
		if err := json.Unmarshal(body, &exps); err != nil {
			return nil, err
		}
		return withDefaults(exps)
	}
	var exp mock.Expectation
	if err := json.Unmarshal(body, &exp); err != nil {
		return nil, err
	}
	return withDefaults([]*mock.Expectation{&exp})
}

func withDefaults(exps []*mock.Expectation) ([]*mock.Expectation, error) {
	for i, exp := range exps {
		if exp == nil {
			return nil, fmt.Errorf("expectation %d is empty", i)
		}
		if exp.ID == "" {
			fresh := mock.NewExpectation(exp.Request)
			exp.ID = fresh.ID
		}
		if exp.Times == nil {
			exp.Times = mock.Unlimited()
		}
		if exp.TimeToLive == nil {
			exp.TimeToLive = mock.TTLUnlimited()
		}
		if exp.Source == "" {
			exp.Source = mock.SourceAPI
		}
	}
	return exps, nil
}

type clearRequest struct {
	ID      string                  `json:"id,omitempty"`
	Request *mock.RequestDefinition `json:"httpRequest,omitempty"`
}

// handleClear removes expectations and/or recorded requests. The type query
// parameter selects the scope: EXPECTATIONS, LOG or ALL (default).
func (c *controlAPI) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	scope := strings.ToUpper(r.URL.Query().Get("type"))
	if scope == "" {
		scope = "ALL"
	}

	var req clearRequest
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if scope == "ALL" || scope == "EXPECTATIONS" {
		if req.ID != "" {
			c.engine.store.ClearByID(req.ID)
		} else if _, err := c.engine.store.Clear(req.Request); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if scope == "ALL" || scope == "LOG" {
		c.engine.recorded.Clear()
	}
	w.WriteHeader(http.StatusOK)
}

func (c *controlAPI) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	c.engine.store.Reset()
	c.engine.recorded.Clear()
	c.engine.log.Info("engine reset")
	w.WriteHeader(http.StatusOK)
}

// handleRetrieve returns active expectations or recorded requests matching
// an optional selector body.
func (c *controlAPI) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var selector *mock.RequestDefinition
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if len(strings.TrimSpace(string(body))) > 0 {
		selector = &mock.RequestDefinition{}
		if err := json.Unmarshal(body, selector); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	switch strings.ToUpper(r.URL.Query().Get("type")) {
	case "", "ACTIVE_EXPECTATIONS":
		exps, err := c.engine.store.RetrieveActive(selector)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmptyExpectations(exps))
	case "EXPECTATIONS":
		exps, err := c.engine.store.RetrieveAll(selector)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmptyExpectations(exps))
	case "REQUESTS":
		entries, err := c.engine.recorded.Retrieve(selector)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmptyEntries(entries))
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown retrieve type %q", r.URL.Query().Get("type")))
	}
}

type verifyRequest struct {
	Request *mock.RequestDefinition       `json:"httpRequest"`
	Times   *requestlog.VerificationTimes `json:"times,omitempty"`
}

func (c *controlAPI) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	times := requestlog.AtLeastOnce()
	if req.Times != nil {
		times = *req.Times
	}
	if err := c.engine.recorded.Verify(req.Request, times); err != nil {
		writeError(w, http.StatusNotAcceptable, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type verifySequenceRequest struct {
	Requests []*mock.RequestDefinition `json:"httpRequests"`
}

func (c *controlAPI) handleVerifySequence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req verifySequenceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.engine.recorded.VerifySequence(req.Requests...); err != nil {
		writeError(w, http.StatusNotAcceptable, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (c *controlAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expectations":     c.engine.store.Count(),
		"recordedRequests": c.engine.recorded.Count(),
	})
}

func orEmptyExpectations(exps []*mock.Expectation) []*mock.Expectation {
	if exps == nil {
		return []*mock.Expectation{}
	}
	return exps
}

func orEmptyEntries(entries []*requestlog.Entry) []*requestlog.Entry {
	if entries == nil {
		return []*requestlog.Entry{}
	}
	return entries
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
}
