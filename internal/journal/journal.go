package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one answered or failed question.
type Entry struct {
	ID        string
	Question  string
	Mode      string
	KpiTables int
	Sources   int
	Elapsed   float64
	Stage     string
	Error     string
	CreatedAt time.Time
}

// timeLayout is fixed-width so created_at sorts lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Journal is a SQLite-backed log of served questions.
type Journal struct {
	conn *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS queries (
    id TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    mode TEXT NOT NULL,
    kpi_tables INTEGER DEFAULT 0,
    sources INTEGER DEFAULT 0,
    elapsed REAL DEFAULT 0,
    stage TEXT,
    error TEXT,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queries_created ON queries(created_at);
`

// Open creates or opens a journal database at the given path.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	} else if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Journal{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Record stores an entry, filling in ID and CreatedAt when unset.
// It returns the stored entry's ID.
func (j *Journal) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := j.conn.ExecContext(ctx,
		`INSERT INTO queries (id, question, mode, kpi_tables, sources, elapsed, stage, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Question, e.Mode, e.KpiTables, e.Sources, e.Elapsed,
		nullString(e.Stage), nullString(e.Error), e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("recording query: %w", err)
	}
	return e.ID, nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	rows, err := j.conn.QueryContext(ctx,
		`SELECT id, question, mode, kpi_tables, sources, elapsed, stage, error, created_at
		 FROM queries ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e            Entry
			stage, errs  sql.NullString
			createdAtRaw string
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Mode, &e.KpiTables, &e.Sources, &e.Elapsed, &stage, &errs, &createdAtRaw); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		e.Stage = stage.String
		e.Error = errs.String
		if ts, err := time.Parse(timeLayout, createdAtRaw); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
