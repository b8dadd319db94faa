package memory

import (
	"context"
	"time"
)

// Filter narrows a structured index query. The zero value matches
// everything, ordered by importance then recency.
type Filter struct {
	// Query is free text; the index tokenizes it, drops stop words and
	// requires every surviving token as a case-insensitive substring.
	// An empty surviving token set means "no text constraint".
	Query string

	// Category restricts to one category when non-empty.
	Category Category

	// From/To bound CreatedAt inclusively when non-zero.
	From time.Time
	To   time.Time

	// Limit truncates the result. Zero or negative means no limit.
	Limit int
}

// StructuredIndex is the exact/substring/range lookup backend.
// Implementations: sqlite (local). Writes must be durable before Insert
// returns; ordering is importance descending, then CreatedAt descending.
type StructuredIndex interface {
	// Insert persists all record fields. This is the only call in the
	// write path that must succeed synchronously before Store returns.
	Insert(ctx context.Context, rec *Record) error

	// Query returns records matching the filter.
	Query(ctx context.Context, f Filter) ([]Record, error)

	// GetByIDs hydrates records by id. Missing ids are silently absent
	// from the result; order is not specified.
	GetByIDs(ctx context.Context, ids []string) (map[string]Record, error)

	// DeleteByIDs removes records and reports how many rows actually
	// went away. Deleting a nonexistent id is not an error.
	DeleteByIDs(ctx context.Context, ids []string) (int, error)

	// MarkEmbedded sets HasEmbedding and bumps UpdatedAt. A missing id
	// is a no-op, not an error (race with a concurrent delete).
	MarkEmbedded(ctx context.Context, id string) error

	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)

	// CountByCategory returns per-category record counts.
	CountByCategory(ctx context.Context) (map[Category]int, error)

	// EvictionCandidates returns up to n ids ordered by importance
	// ascending, then CreatedAt ascending (oldest, least-important first).
	EvictionCandidates(ctx context.Context, n int) ([]string, error)

	// Close releases resources.
	Close() error
}

// Neighbor is one similarity hit: the record id and its distance from the
// query vector (smaller is closer).
type Neighbor struct {
	ID       string
	Distance float64
}

// VectorIndex is the nearest-neighbor backend over fixed-dimension
// embeddings, keyed by record id. Implementations: chromem (local).
type VectorIndex interface {
	// Available reports whether the index can serve calls. It is false
	// until initialization succeeds and stays false for the process if
	// initialization failed.
	Available() bool

	// Upsert inserts or replaces the entry for id.
	Upsert(ctx context.Context, id string, vector []float32, text string) error

	// TopK returns up to k neighbors ascending by distance. k is a hint;
	// fewer may be returned, and an empty index returns an empty slice.
	TopK(ctx context.Context, vector []float32, k int) ([]Neighbor, error)

	// Delete removes entries by id. Absent ids are a no-op.
	Delete(ctx context.Context, ids ...string) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to fixed-length vector embeddings.
// Implementations: mock (testing), onnx (local, build tag "onnx").
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
