// Package analysis holds the analysis cache: the single source of truth for
// whether a block has been analyzed with its exact current content.
package analysis

import (
	"hash/fnv"
	"sync"
	"time"
)

// Status is the state of one cache entry.
type Status int

const (
	StatusAbsent Status = iota
	StatusPending
	StatusReady
	StatusFailed
)

var statusNames = [...]string{
	StatusAbsent:  "absent",
	StatusPending: "pending",
	StatusReady:   "ready",
	StatusFailed:  "failed",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the status is Ready or Failed.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Entry is a cached analysis for one block.
type Entry struct {
	Status      Status    `json:"status"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Pseudocode  string    `json:"pseudocode,omitempty"`
	Error       string    `json:"error,omitempty"`
	ComputedAt  time.Time `json:"computed_at,omitempty"`
}

// Result is a successful analysis.
type Result struct {
	Summary    string
	Pseudocode string
}

const shardCount = 16

type slot struct {
	entry Entry
	done  chan struct{} // closed when the current reservation ends
}

type shard struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// Cache maps block ids to analysis entries for one provider configuration.
// Operations on the same id are atomic with respect to each other; different
// ids live in independent shards.
type Cache struct {
	configKey string
	shards    [shardCount]shard
	now       func() time.Time
}

// New creates an empty cache scoped to a provider configuration key,
// e.g. "ollama/qwen3:14b".
func New(configKey string) *Cache {
	c := &Cache{configKey: configKey, now: time.Now}
	for i := range c.shards {
		c.shards[i].slots = make(map[string]*slot)
	}
	return c
}

// ConfigKey returns the provider configuration the cache is scoped to.
func (c *Cache) ConfigKey() string { return c.configKey }

func (c *Cache) shard(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &c.shards[h.Sum32()%shardCount]
}

// Get returns the entry for id. The boolean is false when the entry is Absent.
func (c *Cache) Get(id string) (Entry, bool) {
	sh := c.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.slots[id]
	if !ok || s.entry.Status == StatusAbsent {
		return Entry{Status: StatusAbsent}, false
	}
	return s.entry, true
}

// Reserve claims the exclusive right to analyze id at fingerprint fp.
// It returns false when a reservation is already pending, or when a Ready
// entry already matches fp.
func (c *Cache) Reserve(id, fp string) bool {
	sh := c.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.slots[id]
	if !ok {
		s = &slot{}
		sh.slots[id] = s
	}
	switch s.entry.Status {
	case StatusPending:
		return false
	case StatusReady:
		if s.entry.Fingerprint == fp {
			return false
		}
	}
	s.entry = Entry{Status: StatusPending, Fingerprint: fp}
	s.done = make(chan struct{})
	return true
}

// Complete ends the reservation for (id, fp) with a result or an error.
// A completion that does not match the pending reservation is discarded and
// Complete returns false.
func (c *Cache) Complete(id, fp string, res Result, err error) bool {
	sh := c.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.slots[id]
	if !ok || s.entry.Status != StatusPending || s.entry.Fingerprint != fp {
		return false
	}
	entry := Entry{Fingerprint: fp, ComputedAt: c.now()}
	if err != nil {
		entry.Status = StatusFailed
		entry.Error = err.Error()
	} else {
		entry.Status = StatusReady
		entry.Summary = res.Summary
		entry.Pseudocode = res.Pseudocode
	}
	s.entry = entry
	close(s.done)
	s.done = nil
	return true
}

// Release ends the reservation for (id, fp) without a result, returning id
// to Absent. It is used when the analysis was never started. A release that
// does not match the pending reservation is ignored and Release returns
// false.
func (c *Cache) Release(id, fp string) bool {
	sh := c.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.slots[id]
	if !ok || s.entry.Status != StatusPending || s.entry.Fingerprint != fp {
		return false
	}
	close(s.done)
	delete(sh.slots, id)
	return true
}

// Invalidate forces id back to Absent regardless of its state. Waiters on a
// pending reservation are released; the in-flight completion will be
// discarded.
func (c *Cache) Invalidate(id string) {
	sh := c.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.slots[id]
	if !ok {
		return
	}
	if s.done != nil {
		close(s.done)
	}
	delete(sh.slots, id)
}

// Clear invalidates every entry.
func (c *Cache) Clear() {
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for id, s := range sh.slots {
			if s.done != nil {
				close(s.done)
			}
			delete(sh.slots, id)
		}
		sh.mu.Unlock()
	}
}

// Wait returns a channel that is closed when the pending reservation for id
// ends (completed or invalidated). The boolean is false when nothing is
// pending for id.
func (c *Cache) Wait(id string) (<-chan struct{}, bool) {
	sh := c.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.slots[id]
	if !ok || s.entry.Status != StatusPending {
		return nil, false
	}
	return s.done, true
}

// Stats counts entries by status.
type Stats struct {
	Pending int `json:"pending"`
	Ready   int `json:"ready"`
	Failed  int `json:"failed"`
}

// Stats returns entry counts across all shards.
func (c *Cache) Stats() Stats {
	var st Stats
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for _, s := range sh.slots {
			switch s.entry.Status {
			case StatusPending:
				st.Pending++
			case StatusReady:
				st.Ready++
			case StatusFailed:
				st.Failed++
			}
		}
		sh.mu.Unlock()
	}
	return st
}
