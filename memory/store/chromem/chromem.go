// Package chromem implements the vector index on chromem-go, a pure Go
// embedded vector database that persists to a directory.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/mnemohq/mnemo/memory"
)

const collectionName = "memories"

// Index is a chromem-backed memory.VectorIndex. The collection is created
// lazily on the first upsert; chromem tolerates querying a zero-row
// collection, so no sentinel rows are ever inserted.
type Index struct {
	db *chromem.DB

	mu  sync.Mutex
	col *chromem.Collection
}

var _ memory.VectorIndex = (*Index)(nil)

// Open opens or creates a persistent vector database under dir. A failure
// here leaves the vector side unavailable for the whole process; the
// caller degrades to structured-only recall rather than retrying.
func Open(dir string) (*Index, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, verr("open database", err)
	}

	// Pick up a collection persisted by an earlier run, if any.
	return &Index{
		db:  db,
		col: db.GetCollection(collectionName, nil),
	}, nil
}

// Available reports whether the index can serve calls.
func (s *Index) Available() bool {
	return s != nil && s.db != nil
}

// collection returns the collection, creating it on first use. Embeddings
// are always supplied by the caller, so no embedding function is wired.
func (s *Index) collection(create bool) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.col != nil {
		return s.col, nil
	}
	if !create {
		return nil, nil
	}

	col, err := s.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, verr("create collection", err)
	}
	s.col = col
	return col, nil
}

// Upsert inserts or replaces the entry for id.
func (s *Index) Upsert(ctx context.Context, id string, vector []float32, text string) error {
	col, err := s.collection(true)
	if err != nil {
		return err
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   text,
		Embedding: vector,
	})
	if err != nil {
		return verr("add document", err)
	}
	return nil
}

// TopK returns up to k neighbors ascending by distance (1 - cosine
// similarity). An empty or missing collection returns no neighbors, not an
// error.
func (s *Index) TopK(ctx context.Context, vector []float32, k int) ([]memory.Neighbor, error) {
	col, err := s.collection(false)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, nil
	}

	// chromem rejects nResults above the document count.
	if n := col.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, verr("query embedding", err)
	}

	neighbors := make([]memory.Neighbor, len(results))
	for i, r := range results {
		neighbors[i] = memory.Neighbor{
			ID:       r.ID,
			Distance: 1 - float64(r.Similarity),
		}
	}
	return neighbors, nil
}

// Delete removes entries by id. Absent ids are a no-op.
func (s *Index) Delete(ctx context.Context, ids ...string) error {
	col, err := s.collection(false)
	if err != nil {
		return err
	}
	if col == nil || len(ids) == 0 {
		return nil
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return verr("delete documents", err)
	}
	return nil
}

// Close releases resources. chromem persists on write, nothing to flush.
func (s *Index) Close() error {
	return nil
}

// verr ties an operation failure to the vector index sentinel.
func verr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", memory.ErrVectorIndex, op, err)
}
