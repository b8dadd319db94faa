// Package sqlite implements the structured index on a single SQLite file.
// Matching is substring-based over lowercased text with a fixed stop-word
// list removed; ordering is entirely by importance and recency, there is
// no relevance scoring.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.

	"github.com/mnemohq/mnemo/memory"
)

// timeLayout is fixed-width UTC so that lexicographic order on the stored
// column equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id            TEXT PRIMARY KEY,
	text          TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT 'other',
	importance    REAL NOT NULL DEFAULT 0.7,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	session_key   TEXT NOT NULL DEFAULT '',
	metadata      TEXT,
	has_embedding INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
CREATE INDEX IF NOT EXISTS idx_memories_created  ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_rank     ON memories(importance DESC, created_at DESC);
`

// stopWords are dropped from query text before substring matching.
var stopWords = map[string]bool{
	"what": true, "did": true, "when": true, "where": true, "how": true,
	"the": true, "is": true, "are": true, "was": true, "were": true,
	"my": true, "you": true, "last": true, "this": true,
}

// Index is a SQLite-backed memory.StructuredIndex.
type Index struct {
	db *sql.DB
}

var _ memory.StructuredIndex = (*Index)(nil)

// Open opens or creates the database file at path. WAL mode keeps
// single-statement writes atomic under concurrent use.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, perr("open database", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, perr("init schema", err)
	}
	return &Index{db: db}, nil
}

// Insert persists all record fields.
func (s *Index) Insert(ctx context.Context, rec *memory.Record) error {
	meta, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return perr("encode metadata", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, text, category, importance, created_at, updated_at, session_key, metadata, has_embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Text, string(rec.Category), rec.Importance,
		rec.CreatedAt.UTC().Format(timeLayout), rec.UpdatedAt.UTC().Format(timeLayout),
		rec.SessionKey, meta, boolToInt(rec.HasEmbedding))
	if err != nil {
		return perr("insert record", err)
	}
	return nil
}

// Query returns records matching the filter, ordered by importance
// descending then recency descending.
func (s *Index) Query(ctx context.Context, f memory.Filter) ([]memory.Record, error) {
	var (
		where []string
		args  []any
	)

	for _, tok := range tokenize(f.Query) {
		// instr avoids LIKE wildcard escaping in user text.
		where = append(where, "instr(lower(text), ?) > 0")
		args = append(args, tok)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UTC().Format(timeLayout))
	}

	q := "SELECT " + recordColumns + " FROM memories"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY importance DESC, created_at DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, perr("query records", err)
	}
	defer rows.Close()

	var out []memory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, perr("scan record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, perr("query records", err)
	}
	return out, nil
}

// GetByIDs hydrates records by id; missing ids are simply absent.
func (s *Index) GetByIDs(ctx context.Context, ids []string) (map[string]memory.Record, error) {
	if len(ids) == 0 {
		return map[string]memory.Record{}, nil
	}

	q := "SELECT " + recordColumns + " FROM memories WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := s.db.QueryContext(ctx, q, toAnySlice(ids)...)
	if err != nil {
		return nil, perr("get by ids", err)
	}
	defer rows.Close()

	out := make(map[string]memory.Record, len(ids))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, perr("scan record", err)
		}
		out[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, perr("get by ids", err)
	}
	return out, nil
}

// DeleteByIDs removes records and reports the actual row-delete count.
func (s *Index) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM memories WHERE id IN ("+placeholders(len(ids))+")",
		toAnySlice(ids)...)
	if err != nil {
		return 0, perr("delete records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, perr("delete records", err)
	}
	return int(n), nil
}

// MarkEmbedded flags a record as present in the vector index and bumps
// updated_at. A missing id is a no-op: the record raced a delete.
func (s *Index) MarkEmbedded(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE memories SET has_embedding = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return perr("mark embedded", err)
	}
	return nil
}

// Count returns the total number of records.
func (s *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&n); err != nil {
		return 0, perr("count records", err)
	}
	return n, nil
}

// CountByCategory returns per-category record counts.
func (s *Index) CountByCategory(ctx context.Context) (map[memory.Category]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT category, COUNT(*) FROM memories GROUP BY category")
	if err != nil {
		return nil, perr("count by category", err)
	}
	defer rows.Close()

	out := make(map[memory.Category]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, perr("count by category", err)
		}
		out[memory.Category(cat)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, perr("count by category", err)
	}
	return out, nil
}

// EvictionCandidates returns up to n ids, least important and oldest first.
func (s *Index) EvictionCandidates(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM memories ORDER BY importance ASC, created_at ASC LIMIT ?", n)
	if err != nil {
		return nil, perr("eviction candidates", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, perr("eviction candidates", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, perr("eviction candidates", err)
	}
	return ids, nil
}

// Close closes the database.
func (s *Index) Close() error {
	return s.db.Close()
}

const recordColumns = "id, text, category, importance, created_at, updated_at, session_key, metadata, has_embedding"

func scanRecord(rows *sql.Rows) (memory.Record, error) {
	var (
		rec                  memory.Record
		category             string
		createdAt, updatedAt string
		meta                 sql.NullString
		hasEmbedding         int
	)
	if err := rows.Scan(&rec.ID, &rec.Text, &category, &rec.Importance,
		&createdAt, &updatedAt, &rec.SessionKey, &meta, &hasEmbedding); err != nil {
		return memory.Record{}, err
	}

	rec.Category = memory.Category(category)
	rec.HasEmbedding = hasEmbedding != 0

	var err error
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return memory.Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return memory.Record{}, fmt.Errorf("parse updated_at: %w", err)
	}

	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
			return memory.Record{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return rec, nil
}

// tokenize lowercases, splits on whitespace, strips punctuation and drops
// stop words. An empty result means "no text constraint", not zero hits.
func tokenize(query string) []string {
	var tokens []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if w == "" || stopWords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

func marshalMetadata(meta map[string]any) (sql.NullString, error) {
	if meta == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// perr ties an operation failure to the persistence sentinel.
func perr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", memory.ErrPersistence, op, err)
}
