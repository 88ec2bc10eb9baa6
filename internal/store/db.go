package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"betterlife-pipeline/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	endpoint TEXT,
	status TEXT,
	records INTEGER DEFAULT 0,
	error_message TEXT,
	started_at DATETIME,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS page_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT,
	format TEXT,
	page INTEGER,
	path TEXT,
	record_count INTEGER,
	size_bytes INTEGER,
	written_at DATETIME
);

CREATE TABLE IF NOT EXISTS archives (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT,
	format TEXT,
	path TEXT,
	entry_count INTEGER,
	created_at DATETIME
);

CREATE TABLE IF NOT EXISTS responses (
	url TEXT PRIMARY KEY,
	body BLOB,
	expires_at INTEGER
);
`

// Store is the run ledger: one row per run, page file and archive
type Store struct {
	db *sql.DB
}

// Run is a ledger row of the runs table
type Run struct {
	ID         string
	Endpoint   string
	Status     string
	Records    int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Open connects to the sqlite file at dbPath and creates missing tables
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun stores a new run in the running state
func (s *Store) StartRun(ctx context.Context, runID, endpoint string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, endpoint, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, endpoint, StatusRunning, time.Now().UTC())
	return err
}

// FinishRun closes a run. A nil runErr marks it completed, anything else failed.
func (s *Store) FinishRun(ctx context.Context, runID string, records int, runErr error) error {
	status := StatusCompleted
	var message sql.NullString
	if runErr != nil {
		status = StatusFailed
		message = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, records = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status, records, message, time.Now().UTC(), runID)
	return err
}

// SavePageFile records one written page file
func (s *Store) SavePageFile(ctx context.Context, runID string, file model.PageFile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_files (run_id, format, page, path, record_count, size_bytes, written_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, string(file.Format), file.Page, file.Path, file.RecordCount, file.SizeBytes, file.WrittenAt)
	return err
}

// SaveArchive records one archive and its entry count
func (s *Store) SaveArchive(ctx context.Context, runID string, manifest model.Manifest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO archives (run_id, format, path, entry_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, string(manifest.Format), manifest.Path, len(manifest.Entries), time.Now().UTC())
	return err
}

// GetRun fetches a run by ID
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	var message sql.NullString
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, endpoint, status, records, error_message, started_at, finished_at FROM runs WHERE id = ?`, runID).
		Scan(&run.ID, &run.Endpoint, &run.Status, &run.Records, &message, &run.StartedAt, &finished)
	if err != nil {
		return Run{}, err
	}
	run.Error = message.String
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return run, nil
}

// ListPageFiles returns the page files of a run in write order
func (s *Store) ListPageFiles(ctx context.Context, runID string) ([]model.PageFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT format, page, path, record_count, size_bytes, written_at FROM page_files WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []model.PageFile
	for rows.Next() {
		var f model.PageFile
		var format string
		if err := rows.Scan(&format, &f.Page, &f.Path, &f.RecordCount, &f.SizeBytes, &f.WrittenAt); err != nil {
			return nil, err
		}
		f.Format = model.Format(format)
		files = append(files, f)
	}
	return files, rows.Err()
}

// CountArchives returns how many archives a run produced
func (s *Store) CountArchives(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archives WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// GetResponse returns a cached response body that has not expired by now.
func (s *Store) GetResponse(ctx context.Context, url string, now time.Time) ([]byte, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM responses WHERE url = ? AND expires_at > ?`, url, now.UnixNano()).
		Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// PutResponse stores a response body until expiresAt, replacing any older copy
func (s *Store) PutResponse(ctx context.Context, url string, body []byte, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO responses (url, body, expires_at) VALUES (?, ?, ?)`,
		url, body, expiresAt.UnixNano())
	return err
}

// PurgeResponses deletes responses that expired by now and reports how many
func (s *Store) PurgeResponses(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
