package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SnapshotVersion is the current on-disk snapshot format.
const SnapshotVersion = 1

// ErrSnapshotVersion is returned when a snapshot has an unsupported version.
var ErrSnapshotVersion = errors.New("unsupported cache snapshot version")

// Snapshot is the persisted form of a cache's Ready entries.
type Snapshot struct {
	Version   int                      `json:"version"`
	ConfigKey string                   `json:"config_key"`
	Entries   map[string]SnapshotEntry `json:"entries"`
}

// SnapshotEntry is one persisted analysis.
type SnapshotEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Summary     string    `json:"summary"`
	Pseudocode  string    `json:"pseudocode"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Export copies every Ready entry into a snapshot. Pending and Failed
// entries are not persisted.
func (c *Cache) Export() *Snapshot {
	snap := &Snapshot{
		Version:   SnapshotVersion,
		ConfigKey: c.configKey,
		Entries:   make(map[string]SnapshotEntry),
	}
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for id, s := range sh.slots {
			if s.entry.Status != StatusReady {
				continue
			}
			snap.Entries[id] = SnapshotEntry{
				Fingerprint: s.entry.Fingerprint,
				Summary:     s.entry.Summary,
				Pseudocode:  s.entry.Pseudocode,
				ComputedAt:  s.entry.ComputedAt,
			}
		}
		sh.mu.Unlock()
	}
	return snap
}

// Import loads Ready entries from a snapshot into ids that are currently
// Absent. A snapshot taken under a different configuration key is ignored,
// since a model change invalidates every analysis. Import returns the number
// of entries loaded.
func (c *Cache) Import(snap *Snapshot) (int, error) {
	if snap == nil {
		return 0, nil
	}
	if snap.Version != SnapshotVersion {
		return 0, fmt.Errorf("import version %d: %w", snap.Version, ErrSnapshotVersion)
	}
	if snap.ConfigKey != c.configKey {
		return 0, nil
	}

	loaded := 0
	for id, e := range snap.Entries {
		sh := c.shard(id)
		sh.mu.Lock()
		if _, exists := sh.slots[id]; !exists {
			sh.slots[id] = &slot{entry: Entry{
				Status:      StatusReady,
				Fingerprint: e.Fingerprint,
				Summary:     e.Summary,
				Pseudocode:  e.Pseudocode,
				ComputedAt:  e.ComputedAt,
			}}
			loaded++
		}
		sh.mu.Unlock()
	}
	return loaded, nil
}

// MarshalSnapshot encodes a snapshot as JSON.
func MarshalSnapshot(snap *Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal cache snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a JSON snapshot.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal cache snapshot: %w", err)
	}
	return &snap, nil
}
