package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/blockscope/blockscope/pkg/analysis"
	"github.com/blockscope/blockscope/pkg/block"
)

// Report summarizes one full run.
type Report struct {
	RunID       string      `json:"run_id"`
	Root        string      `json:"root"`
	ConfigKey   string      `json:"config_key"`
	Concurrency int         `json:"concurrency"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Total       int         `json:"total"`
	Ready       int         `json:"ready"`
	Failed      int         `json:"failed"`
	Skipped     int         `json:"skipped"` // already cached before the run
	NotRun      int         `json:"not_run"` // never queued because the run was cancelled
	Grade       block.Grade `json:"grade"`
	Warnings    int         `json:"warnings"`
	Failures    []Failure   `json:"failures,omitempty"`
}

// Failure is one block whose provider call failed.
type Failure struct {
	NodeID string `json:"node_id"`
	Error  string `json:"error"`
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Complete reports whether every block reached a terminal state.
func (r *Report) Complete() bool {
	return r.Ready+r.Failed+r.Skipped == r.Total
}

// Progress is reported after each block settles during a run.
type Progress struct {
	RunID  string          `json:"run_id"`
	NodeID string          `json:"node_id"`
	Status analysis.Status `json:"status"`
	Done   int             `json:"done"`
	Total  int             `json:"total"`
}

// ProgressFunc receives run progress on the scheduler goroutine.
type ProgressFunc func(Progress)

// Order returns every node in batch order: breadth-first by depth, then
// directories before files before classes and functions, then source order.
func Order(t *block.Tree) []*block.Node {
	var nodes []*block.Node
	t.Walk(func(n *block.Node) bool {
		nodes = append(nodes, n)
		return true
	})
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Depth() != b.Depth() {
			return a.Depth() < b.Depth()
		}
		return a.Kind.Priority() < b.Kind.Priority()
	})
	return nodes
}

type runIDKey struct{}

// WithRunID returns a context that makes RunAll use id as its run id, so a
// caller can hand the id out before the run finishes.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

type planned struct {
	id   string
	kind block.Kind
	fp   string
}

// RunAll analyzes every block in the tree on a dedicated pool of
// concurrency workers and waits until each submitted analysis settles.
// Failures are recorded and the run continues. Cancelling ctx stops new
// submissions; analyses already queued still finish, and the partial report
// is returned with ctx's error. Blocks that were never queued count as
// NotRun and leave no cache entry.
func (e *Engine) RunAll(ctx context.Context, concurrency int, onProgress ProgressFunc) (*Report, error) {
	if concurrency < 1 {
		return nil, &ConfigError{Field: "concurrency", Reason: fmt.Sprintf("must be at least 1, got %d", concurrency)}
	}

	e.mu.Lock()
	order := Order(e.tree)
	plan := make([]planned, len(order))
	for i, n := range order {
		plan[i] = planned{id: n.ID, kind: n.Kind, fp: n.Fingerprint()}
	}
	root := e.tree.Root().ID
	e.mu.Unlock()

	pool, err := e.newPool(concurrency)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	report := &Report{
		RunID:       runID(ctx),
		Root:        root,
		ConfigKey:   e.cache.ConfigKey(),
		Concurrency: concurrency,
		StartedAt:   e.now(),
		Total:       len(plan),
	}
	log := e.log.With("run", report.RunID)
	log.Info("run started", "blocks", report.Total, "workers", concurrency)

	done := 0
	notify := func(id string, status analysis.Status) {
		done++
		if onProgress != nil {
			onProgress(Progress{RunID: report.RunID, NodeID: id, Status: status, Done: done, Total: report.Total})
		}
	}
	record := func(id string, entry analysis.Entry) {
		switch entry.Status {
		case analysis.StatusReady:
			report.Ready++
		case analysis.StatusFailed:
			report.Failed++
			report.Failures = append(report.Failures, Failure{NodeID: id, Error: entry.Error})
		}
		notify(id, entry.Status)
	}

	completions := make(chan string, len(plan))
	inflight := 0
	settle := func(id string, retryFailed bool) {
		for {
			wait, err := e.dispatch(ctx, pool, id, retryFailed)
			if errors.Is(err, ErrNotStarted) {
				log.Debug("block not run", "node", id, "error", err)
				return
			}
			if err != nil {
				record(id, analysis.Entry{Status: analysis.StatusFailed, Error: err.Error()})
				return
			}
			if wait != nil {
				inflight++
				go func() {
					<-wait
					completions <- id
				}()
				return
			}
			if entry, _ := e.cache.Get(id); entry.Status.Terminal() {
				record(id, entry)
				return
			}
		}
	}

	for _, p := range plan {
		if ctx.Err() != nil {
			break
		}
		if p.kind == block.KindDirectory {
			report.Ready++
			notify(p.id, analysis.StatusReady)
			continue
		}
		if entry, ok := e.cache.Get(p.id); ok && entry.Status == analysis.StatusReady && entry.Fingerprint == p.fp {
			report.Skipped++
			notify(p.id, analysis.StatusReady)
			continue
		}
		settle(p.id, true)
	}

	for inflight > 0 {
		id := <-completions
		inflight--
		settle(id, false)
	}

	pool.Close()
	report.FinishedAt = e.now()
	report.NotRun = report.Total - report.Ready - report.Failed - report.Skipped
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].NodeID < report.Failures[j].NodeID
	})

	e.mu.Lock()
	report.Grade = e.scorer.RollUp(e.tree)
	report.Warnings = e.tree.Root().WarningCount()
	e.mu.Unlock()

	log.Info("run finished",
		"ready", report.Ready,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"not_run", report.NotRun,
		"duration", report.Duration())
	return report, ctx.Err()
}
