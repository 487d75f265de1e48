package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ligustah/fwslurp/internal/catalog"
	"github.com/ligustah/fwslurp/internal/report"
)

// ErrNotFound is returned when a run is not in the ledger.
var ErrNotFound = errors.New("history: run not found")

// Store is a run ledger backed by a sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger at path and brings its schema up to
// date.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect history: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records a run and all of its outcomes. Saving a run id twice
// replaces the earlier record.
func (s *Store) Save(ctx context.Context, rep *report.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE run_id = ?`, rep.RunID); err != nil {
		return fmt.Errorf("clear outcomes: %w", err)
	}

	sum := rep.Summary()
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, source, started_at, finished_at, total, success, failure)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID, rep.Source, formatTime(rep.StartedAt), formatTime(rep.FinishedAt),
		sum.Total, sum.Succeeded, sum.Failed,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, position, section, version, size, url, checksum,
		                       status, kind, reason, bytes, elapsed_ns, attempts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare outcome: %w", err)
	}
	defer stmt.Close()

	for i, o := range rep.Outcomes() {
		_, err := stmt.ExecContext(ctx,
			rep.RunID, i, o.Entry.Section.String(), o.Entry.Version, o.Entry.Size,
			o.Entry.URL, o.Entry.Checksum, string(o.Status), string(o.Kind), o.Reason,
			o.BytesWritten, int64(o.Elapsed), o.Attempts,
		)
		if err != nil {
			return fmt.Errorf("save outcome %s: %w", o.Entry.Key(), err)
		}
	}

	return tx.Commit()
}

// Run is the header of a recorded run.
type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    report.Summary
}

// List returns recorded runs, newest first. limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, source, started_at, finished_at, total, success, failure
	          FROM runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
	)
	if err := sc.Scan(&r.ID, &r.Source, &started, &finished,
		&r.Summary.Total, &r.Summary.Succeeded, &r.Summary.Failed); err != nil {
		return r, err
	}

	var err error
	if r.StartedAt, err = parseTime(started); err != nil {
		return r, fmt.Errorf("run %s: %w", r.ID, err)
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return r, fmt.Errorf("run %s: %w", r.ID, err)
	}
	return r, nil
}

// Load rebuilds the report of a recorded run.
func (s *Store) Load(ctx context.Context, runID string) (*report.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, started_at, finished_at, total, success, failure FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	outcomes, err := s.loadOutcomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	return report.Restore(run.ID, run.Source, run.StartedAt, run.FinishedAt, outcomes), nil
}

// Latest loads the most recent run.
func (s *Store) Latest(ctx context.Context) (*report.Report, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return s.Load(ctx, runs[0].ID)
}

func (s *Store) loadOutcomes(ctx context.Context, runID string) ([]report.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT section, version, size, url, checksum, status, kind, reason, bytes, elapsed_ns, attempts
		 FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}
	defer rows.Close()

	var (
		outcomes []report.Outcome
		index    int
	)
	for rows.Next() {
		var (
			o                     report.Outcome
			section, status, kind string
			elapsed               int64
		)
		if err := rows.Scan(&section, &o.Entry.Version, &o.Entry.Size, &o.Entry.URL, &o.Entry.Checksum,
			&status, &kind, &o.Reason, &o.BytesWritten, &elapsed, &o.Attempts); err != nil {
			return nil, err
		}

		if o.Entry.Section, err = catalog.ParseSection(section); err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		o.Entry.Index = index
		o.Status = report.Status(status)
		o.Kind = report.FailureKind(kind)
		o.Elapsed = time.Duration(elapsed)
		outcomes = append(outcomes, o)
		index++
	}
	return outcomes, rows.Err()
}

// timeLayout has a fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
