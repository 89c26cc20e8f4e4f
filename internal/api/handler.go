// Package api implements the local Blockscope server: tree browsing,
// on-demand analysis, source replacement and batch runs over HTTP, with
// progress streamed on a WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockscope/blockscope/internal/editor"
	"github.com/blockscope/blockscope/internal/history"
	"github.com/blockscope/blockscope/pkg/engine"
)

// DefaultWaitTimeout bounds how long an analyze request waits for its result.
const DefaultWaitTimeout = 2 * time.Minute

// RunStore records and lists batch runs. *history.Service implements it.
type RunStore interface {
	Record(ctx context.Context, project string, r *engine.Report) error
	List(ctx context.Context, project string, limit int) ([]history.Run, error)
}

// Flusher persists the analysis cache after a run.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Root        string // absolute project directory on disk
	Token       string // session token; empty disables auth
	Workers     int    // default concurrency for batch runs
	WaitTimeout time.Duration
	Runs        RunStore // optional
	Cache       Flusher  // optional
	Logger      *slog.Logger
}

// Server is the HTTP surface over one Engine.
type Server struct {
	eng  *engine.Engine
	opts Options
	log  *slog.Logger
	hub  *Hub

	editMu sync.Mutex // serializes file edits

	runMu   sync.Mutex
	running string // id of the batch run in progress, if any
	runWG   sync.WaitGroup

	lastActivity atomic.Int64
	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// NewServer creates a Server and subscribes it to engine completions.
func NewServer(eng *engine.Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	s := &Server{
		eng:      eng,
		opts:     opts,
		log:      opts.Logger,
		hub:      NewHub(opts.Logger),
		shutdown: make(chan struct{}),
	}
	s.touch()
	eng.Observe(func(ev engine.Event) {
		s.hub.Broadcast(msgAnalysis, analysisEvent{NodeID: ev.NodeID, Status: ev.Entry.Status.String(), Summary: ev.Entry.Summary, Error: ev.Entry.Error})
	})
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return CORS(s.trackActivity(TokenAuth(s.opts.Token)(mux)))
}

// RegisterRoutes registers all routes on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/tree", s.handleTree)
	mux.HandleFunc("GET /api/source/{id...}", s.handleSource)
	mux.HandleFunc("POST /api/analyze/{id...}", s.handleAnalyze)
	mux.HandleFunc("POST /api/replace/{id...}", s.handleReplace)

	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)

	mux.HandleFunc("POST /shutdown", s.handleShutdown)
}

// Done is closed when a client requests shutdown or the idle watcher fires.
func (s *Server) Done() <-chan struct{} { return s.shutdown }

// Close stops accepting new runs, waits for background runs to finish and
// disconnects WebSocket clients.
func (s *Server) Close() {
	s.requestShutdown("closed")
	s.runWG.Wait()
	s.hub.Close()
}

func (s *Server) requestShutdown(reason string) {
	s.shutdownOnce.Do(func() {
		s.log.Info("shutdown requested", "reason", reason)
		close(s.shutdown)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	s.requestShutdown("client request")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotReplaceable), errors.Is(err, editor.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
