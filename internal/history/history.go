// Package history records batch run reports in Postgres so past runs of a
// project can be listed.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/blockscope/blockscope/pkg/block"
	"github.com/blockscope/blockscope/pkg/engine"
)

// DefaultListLimit bounds List when the caller passes a non-positive limit.
const DefaultListLimit = 20

// Service stores run reports backed by Postgres.
type Service struct {
	db            *sql.DB
	schemaVersion uint
}

// Run is one recorded batch run.
type Run struct {
	ID          string           `json:"id"`
	Project     string           `json:"project"`
	ConfigKey   string           `json:"config_key"`
	Concurrency int              `json:"concurrency"`
	Total       int              `json:"total"`
	Ready       int              `json:"ready"`
	Failed      int              `json:"failed"`
	Skipped     int              `json:"skipped"`
	Grade       block.Grade      `json:"grade"`
	Warnings    int              `json:"warnings"`
	Failures    []engine.Failure `json:"failures,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}

// NewService creates a Service over an open database.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Open connects to databaseURL, verifies the connection and applies
// pending migrations.
func Open(ctx context.Context, databaseURL string) (*Service, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	version, err := AutoMigrate(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	svc := NewService(db)
	svc.schemaVersion = version
	return svc, nil
}

// SchemaVersion is the migration version applied by Open; 0 for services
// created with NewService.
func (s *Service) SchemaVersion() uint { return s.schemaVersion }

// Close closes the underlying database.
func (s *Service) Close() error {
	return s.db.Close()
}

// FromReport converts a run report into a Run for project.
func FromReport(project string, r *engine.Report) Run {
	return Run{
		ID:          r.RunID,
		Project:     project,
		ConfigKey:   r.ConfigKey,
		Concurrency: r.Concurrency,
		Total:       r.Total,
		Ready:       r.Ready,
		Failed:      r.Failed,
		Skipped:     r.Skipped,
		Grade:       r.Grade,
		Warnings:    r.Warnings,
		Failures:    r.Failures,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
}

// Record stores a finished run report for project.
func (s *Service) Record(ctx context.Context, project string, r *engine.Report) error {
	run := FromReport(project, r)
	failures := run.Failures
	if failures == nil {
		failures = []engine.Failure{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, project, config_key, concurrency, total, ready, failed, skipped,
		                   grade, warnings, failures, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.ID, run.Project, run.ConfigKey, run.Concurrency, run.Total, run.Ready, run.Failed, run.Skipped,
		run.Grade.String(), run.Warnings, failuresJSON, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// List returns the most recent runs for project, newest first.
func (s *Service) List(ctx context.Context, project string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project, config_key, concurrency, total, ready, failed, skipped,
		        grade, warnings, failures, started_at, finished_at
		 FROM runs WHERE project = $1 ORDER BY started_at DESC LIMIT $2`,
		project, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run          Run
			grade        string
			failuresJSON []byte
		)
		if err := rows.Scan(
			&run.ID, &run.Project, &run.ConfigKey, &run.Concurrency, &run.Total, &run.Ready, &run.Failed, &run.Skipped,
			&grade, &run.Warnings, &failuresJSON, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := run.Grade.UnmarshalText([]byte(grade)); err != nil {
			return nil, fmt.Errorf("scan run %s: %w", run.ID, err)
		}
		if err := json.Unmarshal(failuresJSON, &run.Failures); err != nil {
			return nil, fmt.Errorf("scan run %s failures: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
