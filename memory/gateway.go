package memory

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// EmbedderFactory builds the underlying embedder. Construction typically
// pays a model-load cost, so the Gateway defers it to the first Embed call.
type EmbedderFactory func() (Embedder, error)

// Gateway wraps an Embedder with lazy single initialization, per-call
// failure isolation and dimension discovery. The dimension observed on the
// first successful call is fixed for the process lifetime; a later mismatch
// would corrupt nearest-neighbor geometry and is reported as ErrEmbedding.
//
// Identical texts are served from a ristretto cache, so re-embedding a
// recurring query is free.
type Gateway struct {
	factory EmbedderFactory

	once     sync.Once
	embedder Embedder
	initErr  error

	mu   sync.Mutex
	dims int // 0 until discovered

	cache *ristretto.Cache
}

// NewGateway creates a gateway around a lazily-constructed embedder.
func NewGateway(factory EmbedderFactory) *Gateway {
	// Cache failure is not fatal, embedding just loses memoization.
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20, // 64 MiB of float32 vectors
		BufferItems: 64,
	})
	if err != nil {
		log.Printf("[EMBED] cache disabled: %v", err)
		cache = nil
	}

	return &Gateway{
		factory: factory,
		cache:   cache,
	}
}

// Embed converts text to a fixed-dimension vector. The first call
// initializes the embedder; concurrent first calls share one
// initialization. Failures are typed ErrEmbedding and never panic.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	g.once.Do(func() {
		emb, err := g.factory()
		if err != nil {
			g.initErr = err
			log.Printf("[EMBED] embedder initialization failed: %v", err)
			return
		}
		g.embedder = emb
		log.Printf("[EMBED] embedder initialized")
	})
	if g.initErr != nil {
		return nil, wrap(ErrEmbedding, "init", g.initErr)
	}

	if g.cache != nil {
		if v, ok := g.cache.Get(text); ok {
			if vec, ok := v.([]float32); ok {
				return vec, nil
			}
		}
	}

	vec, err := g.embedder.Embed(ctx, text)
	if err != nil {
		return nil, wrap(ErrEmbedding, "embed", err)
	}
	if len(vec) == 0 {
		return nil, wrap(ErrEmbedding, "embed", fmt.Errorf("empty vector"))
	}

	if err := g.checkDimensions(len(vec)); err != nil {
		return nil, err
	}

	if g.cache != nil {
		g.cache.Set(text, vec, int64(4*len(vec)))
	}
	return vec, nil
}

// checkDimensions fixes the dimension on first success and rejects any
// later mismatch.
func (g *Gateway) checkDimensions(got int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dims == 0 {
		g.dims = got
		log.Printf("[EMBED] discovered embedding dimension %d", got)
		return nil
	}
	if got != g.dims {
		return wrap(ErrEmbedding, "embed",
			fmt.Errorf("dimension mismatch: got %d, expected %d", got, g.dims))
	}
	return nil
}

// Dimensions returns the discovered embedding dimension, or 0 before the
// first successful Embed.
func (g *Gateway) Dimensions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dims
}
