// Package journal records upload attempts in a SQLite database.
//
// Fire-and-forget uploads from the Markdown path never surface failures to
// the render; the journal is the durable record operators can query to find
// predicted URLs whose upload never landed.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Outcome classifies an upload attempt.
type Outcome string

const (
	OutcomeUploaded Outcome = "uploaded"
	OutcomeFailed   Outcome = "failed"
)

// Entry is one recorded upload attempt.
type Entry struct {
	ID           string
	LocalPath    string
	Folder       string
	PredictedURL string
	ActualURL    string
	Outcome      Outcome
	Error        string
	CreatedAt    time.Time
}

// Journal is a SQLite-backed upload log.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens a journal database. Use ":memory:" for an
// in-memory journal, or a file path for persistent storage.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		local_path TEXT NOT NULL,
		folder TEXT NOT NULL,
		predicted_url TEXT NOT NULL,
		actual_url TEXT,
		outcome TEXT NOT NULL,
		error TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_outcome ON uploads(outcome);
	CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record appends an upload attempt. The entry's ID and CreatedAt are
// assigned here.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	e.ID = uuid.NewString()
	e.CreatedAt = time.Now()

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO uploads (id, local_path, folder, predicted_url, actual_url, outcome, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.LocalPath, e.Folder, e.PredictedURL, e.ActualURL, string(e.Outcome), e.Error, e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert upload record: %w", err)
	}
	return nil
}

// Failures returns all attempts whose upload did not complete, oldest first.
// These are the entries whose predicted URLs may be dangling.
func (j *Journal) Failures(ctx context.Context) ([]Entry, error) {
	return j.query(ctx, "SELECT id, local_path, folder, predicted_url, actual_url, outcome, error, created_at FROM uploads WHERE outcome = ? ORDER BY created_at ASC", string(OutcomeFailed))
}

// List returns all recorded attempts, oldest first.
func (j *Journal) List(ctx context.Context) ([]Entry, error) {
	return j.query(ctx, "SELECT id, local_path, folder, predicted_url, actual_url, outcome, error, created_at FROM uploads ORDER BY created_at ASC")
}

func (j *Journal) query(ctx context.Context, stmt string, args ...any) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var actualURL, errMsg sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.LocalPath, &e.Folder, &e.PredictedURL, &actualURL, (*string)(&e.Outcome), &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("scan upload record: %w", err)
		}
		e.ActualURL = actualURL.String
		e.Error = errMsg.String
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
