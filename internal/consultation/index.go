package consultation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one row of the consultation index.
type Entry struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	FilePath      string    `json:"file_path"`
	RecordingPath string    `json:"recording_path,omitempty"`
	PromptVersion string    `json:"prompt_version"`
	Utterances    int       `json:"utterances"`
	Presentation  string    `json:"presentation,omitempty"`
	LifeEffect    string    `json:"life_effect,omitempty"`
	Goal          string    `json:"goal,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Index is an SQLite catalogue of saved consultations.
type Index struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS consultations (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		recording_path TEXT,
		prompt_version TEXT NOT NULL,
		utterances INTEGER NOT NULL,
		presentation TEXT,
		life_effect TEXT,
		goal TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_consultations_created ON consultations(created_at);
`

// OpenIndex opens (creating if needed) the index at path. ":memory:" gives a
// throwaway database.
func OpenIndex(path string) (*Index, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" to a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

// Add records a saved consultation.
func (x *Index) Add(ctx context.Context, e Entry) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO consultations
			(id, session_id, file_path, recording_path, prompt_version, utterances,
			 presentation, life_effect, goal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SessionID, e.FilePath, nullString(e.RecordingPath), e.PromptVersion, e.Utterances,
		nullString(e.Presentation), nullString(e.LifeEffect), nullString(e.Goal), e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert consultation: %w", err)
	}
	return nil
}

// Recent returns up to limit consultations, newest first.
func (x *Index) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := x.db.QueryContext(ctx, `
		SELECT id, session_id, file_path, recording_path, prompt_version, utterances,
		       presentation, life_effect, goal, created_at
		FROM consultations
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query consultations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recording, presentation, lifeEffect, goal sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.FilePath, &recording, &e.PromptVersion,
			&e.Utterances, &presentation, &lifeEffect, &goal, &createdAt); err != nil {
			return nil, fmt.Errorf("scan consultation: %w", err)
		}
		e.RecordingPath = recording.String
		e.Presentation = presentation.String
		e.LifeEffect = lifeEffect.String
		e.Goal = goal.String
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of indexed consultations.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM consultations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count consultations: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
