// Package ledger records which subjects were downloaded, when, and into
// which directory. Postgres DSNs use pgx; anything else is a sqlite file.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // register sqlite as a database/sql driver
)

var sqlOpen = sql.Open

// Entry is one subject download.
type Entry struct {
	Project          string
	Subject          string
	RunID            string
	Dir              string
	ExperimentsTotal int
	Downloaded       int
	Skipped          int
	FinishedAt       time.Time
}

// Store is the download ledger.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to dsn and makes sure the ledger table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver := driverFor(dsn)
	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.ensureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func driverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx"
	}
	return "sqlite"
}

func (s *Store) ensureTable(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS subject_downloads (
		project TEXT NOT NULL,
		subject_label TEXT NOT NULL,
		run_id TEXT NOT NULL,
		subject_dir TEXT NOT NULL,
		experiments_total INTEGER NOT NULL,
		downloaded INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		finished_at TEXT NOT NULL,
		PRIMARY KEY (project, subject_label)
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure ledger table: %w", err)
	}
	return nil
}

// bind rewrites ? placeholders into $n for pgx.
func (s *Store) bind(query string) string {
	if s.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Record inserts e, replacing any earlier entry for the same subject.
func (s *Store) Record(ctx context.Context, e Entry) error {
	query := s.bind(`INSERT INTO subject_downloads
		(project, subject_label, run_id, subject_dir, experiments_total, downloaded, skipped, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project, subject_label) DO UPDATE SET
			run_id = excluded.run_id,
			subject_dir = excluded.subject_dir,
			experiments_total = excluded.experiments_total,
			downloaded = excluded.downloaded,
			skipped = excluded.skipped,
			finished_at = excluded.finished_at`)
	_, err := s.db.ExecContext(ctx, query,
		e.Project, e.Subject, e.RunID, e.Dir,
		e.ExperimentsTotal, e.Downloaded, e.Skipped,
		e.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record %s/%s: %w", e.Project, e.Subject, err)
	}
	return nil
}

const selectColumns = `SELECT project, subject_label, run_id, subject_dir, experiments_total, downloaded, skipped, finished_at FROM subject_downloads`

// Get returns the entry of one subject. ok is false when there is none.
func (s *Store) Get(ctx context.Context, project, subject string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, s.bind(selectColumns+` WHERE project = ? AND subject_label = ?`), project, subject)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get %s/%s: %w", project, subject, err)
	}
	return e, true, nil
}

// List returns the entries of a project ordered by subject label.
func (s *Store) List(ctx context.Context, project string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(selectColumns+` WHERE project = ? ORDER BY subject_label`), project)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", project, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", project, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var finished string
	if err := row.Scan(&e.Project, &e.Subject, &e.RunID, &e.Dir, &e.ExperimentsTotal, &e.Downloaded, &e.Skipped, &finished); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, finished)
	if err != nil {
		return Entry{}, fmt.Errorf("parse finished_at: %w", err)
	}
	e.FinishedAt = t
	return e, nil
}
