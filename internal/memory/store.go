// Package memory is the shared-memory note store. Notes are short texts
// scoped to a worker identity and retrieved by keyword search.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xtechdean/ai-team-orchestrator/internal/state"
)

// Note is one stored memory.
type Note struct {
	ID        string            `json:"id"`
	Scope     string            `json:"scope,omitempty"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store persists notes in the shared SQLite database.
type Store struct {
	db       *state.DB
	initOnce sync.Once
	initErr  error
	now      func() time.Time
}

// NewStore creates a note store on an open database.
func NewStore(db *state.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const schema = `
CREATE TABLE IF NOT EXISTS memory_notes (
	id TEXT PRIMARY KEY,
	scope TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	metadata TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_notes_scope ON memory_notes(scope, created_at);
`

func (s *Store) init(ctx context.Context) error {
	s.initOnce.Do(func() {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			s.initErr = fmt.Errorf("create memory schema: %w", err)
		}
	})
	return s.initErr
}

// Add stores a note under scope.
func (s *Store) Add(ctx context.Context, text, scope string, metadata map[string]string) (*Note, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	n := &Note{
		ID:        uuid.New().String(),
		Scope:     scope,
		Text:      text,
		Metadata:  metadata,
		CreatedAt: s.now().UTC(),
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_notes (id, scope, text, metadata, created_at) VALUES (?, ?, ?, ?, ?)
	`, n.ID, n.Scope, n.Text, string(meta), state.FormatTime(n.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("add note: %w", err)
	}
	return n, nil
}

// Search returns up to limit notes, newest first. A non-empty query keeps
// notes containing any of its words of three or more letters. A non-empty
// scope keeps that scope's notes plus unscoped ones. An empty query
// returns the most recent notes.
func (s *Store) Search(ctx context.Context, query, scope string, limit int) ([]Note, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	q := `SELECT id, scope, text, metadata, created_at FROM memory_notes WHERE 1=1`
	var args []any
	if scope != "" {
		q += ` AND (scope = ? OR scope = '')`
		args = append(args, scope)
	}
	if terms := searchTerms(query); len(terms) > 0 {
		likes := make([]string, len(terms))
		for i, term := range terms {
			likes[i] = `LOWER(text) LIKE ?`
			args = append(args, "%"+term+"%")
		}
		q += ` AND (` + strings.Join(likes, " OR ") + `)`
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var meta, createdAt string
		if err := rows.Scan(&n.ID, &n.Scope, &n.Text, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		if meta != "" && meta != "null" {
			json.Unmarshal([]byte(meta), &n.Metadata)
		}
		n.CreatedAt, _ = state.ParseTime(createdAt)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// searchTerms lowercases the query and keeps distinct words of three or
// more characters, capped at eight.
func searchTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_')
	}) {
		if len(w) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
		if len(terms) == 8 {
			break
		}
	}
	return terms
}
