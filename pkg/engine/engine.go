package engine

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/expectd/expectd/internal/matching"
	"github.com/expectd/expectd/internal/scheduler"
	"github.com/expectd/expectd/internal/storage"
	"github.com/expectd/expectd/pkg/config"
	"github.com/expectd/expectd/pkg/logging"
	"github.com/expectd/expectd/pkg/mock"
	"github.com/expectd/expectd/pkg/requestlog"
)

// maxBodyBytes caps how much request body the engine reads.
const maxBodyBytes = 16 * 1024 * 1024

// Engine matches inbound requests against the expectation store and executes
// the winning expectation's action.
type Engine struct {
	cfg   *config.Config
	log   *slog.Logger
	sm    *matching.StringMatcher
	sched *scheduler.Scheduler

	store    *storage.RequestMatchers
	recorded *requestlog.Store
	control  *controlAPI
}

// New assembles an engine from the configuration.
func New(cfg *config.Config, log *slog.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.Nop()
	}
	sm := matching.NewStringMatcher(logging.Component(log, "matching"), cfg.PatternCacheSize)
	sched := scheduler.New(logging.Component(log, "scheduler"))
	store := storage.NewRequestMatchers(
		logging.Component(log, "storage"), sm,
		storage.WithMaxExpectations(cfg.MaxExpectations),
		storage.WithSweeper(sched, cfg.SweepInterval),
	)
	recorded := requestlog.NewStore(logging.Component(log, "requestlog"), sm, cfg.MaxRecordedRequests)

	e := &Engine{
		cfg:      cfg,
		log:      logging.Component(log, "engine"),
		sm:       sm,
		sched:    sched,
		store:    store,
		recorded: recorded,
	}
	e.control = newControlAPI(e)
	return e
}

// Close stops background work.
func (e *Engine) Close() {
	e.store.Close()
	e.sched.Stop()
}

// Store exposes the expectation store for embedding callers.
func (e *Engine) Store() *storage.RequestMatchers { return e.store }

// Recorded exposes the request log for embedding callers.
func (e *Engine) Recorded() *requestlog.Store { return e.recorded }

// LoadInitializers upserts file-sourced expectations from the configured
// initializer files.
func (e *Engine) LoadInitializers() error {
	exps, err := config.LoadAllExpectations(e.cfg.Initializers)
	if err != nil {
		return err
	}
	if len(exps) == 0 {
		return nil
	}
	if _, err := e.store.Upsert(exps...); err != nil {
		return err
	}
	e.log.Info("loaded initializer expectations", "count", len(exps))
	return nil
}

// ServeHTTP routes control-plane traffic to the admin API and everything
// else through expectation matching.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, e.cfg.ControlPathPrefix+"/") || r.URL.Path == e.cfg.ControlPathPrefix {
		e.control.ServeHTTP(w, r)
		return
	}
	e.handleDataPlane(w, r)
}

func (e *Engine) handleDataPlane(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		e.log.Warn("failed to read request body", "error", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	req := mock.FromHTTP(r, body)
	// matching drained the body; forward actions re-send it upstream
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))

	exp := e.store.Match(req)
	entry := requestlog.NewEntry(req, expectationID(exp))
	if exp == nil {
		e.log.Debug("no expectation matched", "method", req.Method, "path", req.Path)
		entry.ResponseStatus = http.StatusNotFound
		entry.Duration = time.Since(start)
		e.recorded.Record(entry)
		http.Error(w, "no expectation matched", http.StatusNotFound)
		return
	}

	status := e.execute(w, r, req, exp)
	entry.ResponseStatus = status
	entry.Duration = time.Since(start)
	e.recorded.Record(entry)
	e.log.Debug("expectation matched",
		"method", req.Method, "path", req.Path,
		"expectation", exp.ID, "status", status,
		"duration", entry.Duration)
}

func expectationID(exp *mock.Expectation) string {
	if exp == nil {
		return ""
	}
	return exp.ID
}
