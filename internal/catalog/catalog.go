// Package catalog records every document and split part the pipeline
// produces in a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Kind distinguishes assembled documents from split parts.
type Kind string

const (
	KindDocument Kind = "document"
	KindPart     Kind = "part"
)

// Entry is one produced file.
type Entry struct {
	ID       int64
	Path     string
	Kind     Kind
	Sequence int64
	// Parent is the split source for parts.
	Parent    string
	PartIndex int
	StartPage int
	EndPage   int
	Pages     int
	Size      int64
	RunID     string
	RemoteURL string
	CreatedAt time.Time
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Kind   Kind
	Parent string
	Limit  int
}

// Store wraps the catalog database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the catalog at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			sequence INTEGER,
			parent TEXT,
			part_index INTEGER,
			start_page INTEGER,
			end_page INTEGER,
			pages INTEGER NOT NULL,
			size INTEGER NOT NULL,
			run_id TEXT,
			remote_url TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(parent)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record inserts e, replacing any previous entry for the same path.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO entries (path, kind, sequence, parent, part_index, start_page, end_page, pages, size, run_id, remote_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind = excluded.kind,
			sequence = excluded.sequence,
			parent = excluded.parent,
			part_index = excluded.part_index,
			start_page = excluded.start_page,
			end_page = excluded.end_page,
			pages = excluded.pages,
			size = excluded.size,
			run_id = excluded.run_id,
			remote_url = excluded.remote_url,
			created_at = excluded.created_at
		RETURNING id`,
		e.Path, string(e.Kind), e.Sequence, e.Parent, e.PartIndex, e.StartPage, e.EndPage,
		e.Pages, e.Size, e.RunID, e.RemoteURL, e.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("recording %s: %w", e.Path, err)
	}
	return id, nil
}

// SetRemoteURL stores where a recorded file was published.
func (s *Store) SetRemoteURL(ctx context.Context, path, url string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE entries SET remote_url = ? WHERE path = ?`, url, path)
	if err != nil {
		return fmt.Errorf("updating %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating %s: %w", path, sql.ErrNoRows)
	}
	return nil
}

// Get returns the entry recorded for path.
func (s *Store) Get(ctx context.Context, path string) (Entry, bool, error) {
	rows, err := s.db.QueryContext(ctx, selectEntries+` WHERE path = ?`, path)
	if err != nil {
		return Entry{}, false, err
	}
	entries, err := scanEntries(rows)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[0], true, nil
}

// List returns entries in creation order.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	q := selectEntries + ` WHERE 1 = 1`
	var args []any
	if f.Kind != "" {
		q += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if f.Parent != "" {
		q += ` AND parent = ?`
		args = append(args, f.Parent)
	}
	q += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return scanEntries(rows)
}

// Prune drops entries whose file no longer exists and reports how many.
func (s *Store) Prune(ctx context.Context) (int, error) {
	entries, err := s.List(ctx, Filter{})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if _, err := os.Stat(e.Path); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, e.ID); err != nil {
			return removed, fmt.Errorf("pruning %s: %w", e.Path, err)
		}
		removed++
	}
	return removed, nil
}

const selectEntries = `SELECT id, path, kind, sequence, parent, part_index, start_page, end_page, pages, size, run_id, remote_url, created_at FROM entries`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			kind    string
			parent  sql.NullString
			runID   sql.NullString
			remote  sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.Path, &kind, &e.Sequence, &parent, &e.PartIndex, &e.StartPage, &e.EndPage,
			&e.Pages, &e.Size, &runID, &remote, &created); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.Parent = parent.String
		e.RunID = runID.String
		e.RemoteURL = remote.String
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
