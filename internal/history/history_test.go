package history

import (
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/blockscope/blockscope/pkg/block"
	"github.com/blockscope/blockscope/pkg/engine"
)

func TestFromReport(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &engine.Report{
		RunID:       "run-1",
		Root:        "proj",
		ConfigKey:   "ollama/qwen3:8b",
		Concurrency: 4,
		StartedAt:   start,
		FinishedAt:  start.Add(3 * time.Second),
		Total:       10,
		Ready:       7,
		Failed:      1,
		Skipped:     2,
		Grade:       block.Warning,
		Warnings:    2,
		Failures:    []engine.Failure{{NodeID: "a.py::f", Error: "boom"}},
	}

	run := FromReport("/src/proj", r)
	if run.ID != "run-1" || run.Project != "/src/proj" || run.ConfigKey != "ollama/qwen3:8b" {
		t.Errorf("identity = %+v", run)
	}
	if run.Total != 10 || run.Ready != 7 || run.Failed != 1 || run.Skipped != 2 || run.Concurrency != 4 {
		t.Errorf("counts = %+v", run)
	}
	if run.Grade != block.Warning || run.Warnings != 2 {
		t.Errorf("grade = %s warnings %d", run.Grade, run.Warnings)
	}
	if len(run.Failures) != 1 || run.Failures[0].NodeID != "a.py::f" {
		t.Errorf("failures = %+v", run.Failures)
	}
	if !run.StartedAt.Equal(start) || run.FinishedAt.Sub(run.StartedAt) != 3*time.Second {
		t.Errorf("times = %v .. %v", run.StartedAt, run.FinishedAt)
	}
}

func TestNewService(t *testing.T) {
	// NewService only stores the reference.
	svc := NewService(nil)
	if svc == nil {
		t.Fatal("NewService returned nil")
	}
	if svc.SchemaVersion() != 0 {
		t.Errorf("SchemaVersion() = %d, want 0 before migrations", svc.SchemaVersion())
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	var up, down int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down++
		}
	}
	if up == 0 || up != down {
		t.Errorf("migrations: %d up, %d down", up, down)
	}

	data, err := fs.ReadFile(migrationsFS, "migrations/000001_create_runs.up.sql")
	if err != nil {
		t.Fatalf("read runs migration: %v", err)
	}
	for _, col := range []string{"project", "config_key", "grade", "failures", "started_at"} {
		if !strings.Contains(string(data), col) {
			t.Errorf("runs migration missing column %s", col)
		}
	}
}
