// Package engine schedules block analysis against a bounded worker pool.
//
// An Engine owns a block tree, its scorer and an analysis cache. Interactive
// callers resolve single blocks through Request; full runs drain the whole
// tree through RunAll. Replacing a block's code with OnReplace invalidates
// exactly that block's analysis and re-rolls the grades of its ancestors.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blockscope/blockscope/pkg/analysis"
	"github.com/blockscope/blockscope/pkg/block"
	"github.com/blockscope/blockscope/pkg/provider"
	"github.com/blockscope/blockscope/pkg/scoring"
)

var (
	// ErrUnknownNode is returned for an id that is not in the tree.
	ErrUnknownNode = errors.New("unknown node")
	// ErrNotReplaceable is returned when replacing code of a directory.
	ErrNotReplaceable = errors.New("node has no replaceable source")
	// ErrPoolClosed is returned when submitting to a closed worker pool.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrNotStarted is returned when an analysis could not be queued, e.g.
	// after its run was cancelled. No cache entry is recorded.
	ErrNotStarted = errors.New("analysis not started")
)

// DefaultCallTimeout bounds a single provider call.
const DefaultCallTimeout = 60 * time.Second

// ConfigError reports an invalid engine setting. It is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MetricsFunc recomputes a block's static metrics from new source text.
type MetricsFunc func(n *block.Node, text string) *block.Metrics

// Config controls an Engine.
type Config struct {
	Workers     int           // interactive pool size, at least 1
	QueueSize   int           // bounded job queue; defaults to 256
	CallTimeout time.Duration // per provider call; defaults to DefaultCallTimeout
	Thresholds  scoring.Thresholds
	MetricsFunc MetricsFunc // used by OnReplace; nil keeps the old metrics
	Logger      *slog.Logger
}

func (c Config) validate() error {
	if c.Workers < 1 {
		return &ConfigError{Field: "workers", Reason: fmt.Sprintf("must be at least 1, got %d", c.Workers)}
	}
	if c.QueueSize < 0 {
		return &ConfigError{Field: "queue_size", Reason: fmt.Sprintf("must not be negative, got %d", c.QueueSize)}
	}
	if c.CallTimeout < 0 {
		return &ConfigError{Field: "call_timeout", Reason: "must not be negative"}
	}
	if err := c.Thresholds.Validate(); err != nil {
		return &ConfigError{Field: "thresholds", Reason: err.Error()}
	}
	return nil
}

// Event is published whenever an analysis reaches a terminal state.
type Event struct {
	NodeID string         `json:"node_id"`
	Entry  analysis.Entry `json:"entry"`
}

// Engine coordinates the tree, scorer, cache and worker pools.
type Engine struct {
	cfg      Config
	log      *slog.Logger
	provider provider.Provider
	cache    *analysis.Cache
	pool     *Pool

	mu     sync.Mutex // guards tree and scorer
	tree   *block.Tree
	scorer *scoring.Scorer

	obsMu     sync.RWMutex
	observers []func(Event)

	now func() time.Time
}

// New creates an engine over tree. A nil cache creates an empty one scoped
// to the provider's configuration key. The tree is scored before New returns.
func New(tree *block.Tree, prov provider.Provider, cache *analysis.Cache, cfg Config) (*Engine, error) {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 256
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if tree == nil || tree.Root() == nil {
		return nil, &ConfigError{Field: "tree", Reason: "must have a root"}
	}
	if prov == nil {
		return nil, &ConfigError{Field: "provider", Reason: "must be set"}
	}
	if cache == nil {
		cache = analysis.New(prov.Key())
	} else if cache.ConfigKey() != prov.Key() {
		return nil, &ConfigError{
			Field:  "cache",
			Reason: fmt.Sprintf("scoped to %q but provider is %q", cache.ConfigKey(), prov.Key()),
		}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		cfg:      cfg,
		log:      log,
		provider: prov,
		cache:    cache,
		tree:     tree,
		scorer:   scoring.NewScorer(cfg.Thresholds),
		now:      time.Now,
	}
	pool, err := e.newPool(cfg.Workers)
	if err != nil {
		return nil, err
	}
	e.pool = pool
	e.scorer.RollUp(tree)
	return e, nil
}

// Close stops the interactive pool after in-flight analyses finish.
func (e *Engine) Close() {
	e.pool.Close()
}

// Cache returns the engine's analysis cache.
func (e *Engine) Cache() *analysis.Cache { return e.cache }

// Scorer returns the engine's scorer.
func (e *Engine) Scorer() *scoring.Scorer { return e.scorer }

// Observe registers fn to be called after every accepted completion.
// fn runs on a worker goroutine and must not block.
func (e *Engine) Observe(fn func(Event)) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, fn)
}

func (e *Engine) publish(ev Event) {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	for _, fn := range e.observers {
		fn(ev)
	}
}

// View renders the tree (or the subtree at id when id is non-empty) with
// grades, notes and analysis state.
func (e *Engine) View(id string) (*block.View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.tree.Root()
	if id != "" {
		var ok bool
		if n, ok = e.tree.Node(id); !ok {
			return nil, fmt.Errorf("view %q: %w", id, ErrUnknownNode)
		}
	}
	e.scorer.RollUp(e.tree)
	return e.tree.BuildView(n, func(n *block.Node, v *block.View) {
		v.Notes = e.scorer.Notes(n)
		entry := e.entryLocked(n)
		v.Status = entry.Status.String()
		v.Summary = entry.Summary
		v.Pseudocode = entry.Pseudocode
		v.Error = entry.Error
	}), nil
}

// Snippet is a copy of a block's text and location at one point in time.
type Snippet struct {
	ID          string
	Kind        block.Kind
	Language    string
	Path        string
	StartLine   int
	EndLine     int
	Text        string
	Fingerprint string
}

// Source returns a block's current text and span. Later replacements do not
// change a returned Snippet.
func (e *Engine) Source(id string) (Snippet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.tree.Node(id)
	if !ok {
		return Snippet{}, fmt.Errorf("source %q: %w", id, ErrUnknownNode)
	}
	return Snippet{
		ID:          n.ID,
		Kind:        n.Kind,
		Language:    n.Language,
		Path:        n.Path,
		StartLine:   n.StartLine,
		EndLine:     n.EndLine,
		Text:        n.Text(),
		Fingerprint: n.Fingerprint(),
	}, nil
}

// Entry returns the analysis state of a block. Directories always report a
// Ready synthesized summary.
func (e *Engine) Entry(id string) (analysis.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.tree.Node(id)
	if !ok {
		return analysis.Entry{}, fmt.Errorf("entry %q: %w", id, ErrUnknownNode)
	}
	return e.entryLocked(n), nil
}

func (e *Engine) entryLocked(n *block.Node) analysis.Entry {
	if n.Kind == block.KindDirectory {
		return e.directoryEntry(n)
	}
	entry, _ := e.cache.Get(n.ID)
	if entry.Status != analysis.StatusAbsent && entry.Fingerprint != n.Fingerprint() {
		return analysis.Entry{Status: analysis.StatusAbsent}
	}
	return entry
}

// target is what a worker needs to analyze a block, captured under e.mu so
// workers never touch the tree.
type target struct {
	id   string
	fp   string
	kind block.Kind
	req  provider.Request
}

func (e *Engine) lookup(id string) (target, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.tree.Node(id)
	if !ok {
		return target{}, fmt.Errorf("request %q: %w", id, ErrUnknownNode)
	}
	return e.targetLocked(n), nil
}

func (e *Engine) targetLocked(n *block.Node) target {
	return target{
		id:   n.ID,
		fp:   n.Fingerprint(),
		kind: n.Kind,
		req: provider.Request{
			NodeID:   n.ID,
			Name:     n.Name,
			Kind:     n.Kind.String(),
			Language: n.Language,
			Source:   n.Text(),
		},
	}
}
