package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/blockscope/blockscope/pkg/engine"
)

type runRequest struct {
	Workers int `json:"workers"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	workers := s.opts.Workers
	var req runRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Workers < 0 {
		writeError(w, http.StatusBadRequest, "workers must be positive")
		return
	}
	if req.Workers > 0 {
		workers = req.Workers
	}

	s.runMu.Lock()
	if s.running != "" {
		id := s.running
		s.runMu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a run is already in progress", "run_id": id})
		return
	}
	select {
	case <-s.shutdown:
		s.runMu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	default:
	}
	id := uuid.NewString()
	s.running = id
	s.runWG.Add(1)
	s.runMu.Unlock()

	go s.run(id, workers)
	writeJSON(w, http.StatusAccepted, map[string]any{"run_id": id, "workers": workers})
}

// run executes one batch run in the background and publishes its progress.
// Shutdown cancels the run; analyses already queued still land in the cache.
func (s *Server) run(id string, workers int) {
	defer s.runWG.Done()
	defer func() {
		s.runMu.Lock()
		s.running = ""
		s.runMu.Unlock()
	}()

	ctx, cancel := context.WithCancel(engine.WithRunID(context.Background(), id))
	defer cancel()
	go func() {
		select {
		case <-s.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.hub.Broadcast(msgRunStarted, map[string]any{"run_id": id, "workers": workers})
	report, err := s.eng.RunAll(ctx, workers, func(p engine.Progress) {
		s.hub.Broadcast(msgProgress, p)
	})
	if report == nil {
		s.log.Error("run failed", "run", id, "error", err)
		s.hub.Broadcast(msgError, map[string]string{"run_id": id, "message": err.Error()})
		return
	}
	if err != nil {
		s.log.Warn("run interrupted", "run", id, "error", err)
	}

	// Persist even partial results.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer saveCancel()
	if s.opts.Cache != nil {
		if err := s.opts.Cache.Flush(saveCtx); err != nil {
			s.log.Warn("cache flush failed", "run", id, "error", err)
		}
	}
	if s.opts.Runs != nil {
		if err := s.opts.Runs.Record(saveCtx, s.opts.Root, report); err != nil {
			s.log.Warn("recording run failed", "run", id, "error", err)
		}
	}
	s.hub.Broadcast(msgRunFinished, report)
}

func (s *Server) runActive() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running != ""
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		writeError(w, http.StatusNotFound, "run history is not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.opts.Runs.List(r.Context(), s.opts.Root, limit)
	if err != nil {
		s.log.Error("list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
