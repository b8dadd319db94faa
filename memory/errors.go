package memory

import (
	"errors"
	"fmt"
)

// Error taxonomy. Only ErrValidation, ErrPersistence and ErrNotInitialized
// cross the public boundary as call failures; ErrEmbedding and
// ErrVectorIndex are caught at the point of use and converted into graceful
// degradation plus a log line.
var (
	// ErrValidation marks malformed input, rejected before touching any index.
	ErrValidation = errors.New("memory: validation")

	// ErrPersistence marks a structured index read/write failure,
	// fatal to the current call.
	ErrPersistence = errors.New("memory: persistence")

	// ErrEmbedding marks failed embedding generation or a dimension
	// mismatch. Never fatal to Store; the record stays structured-only.
	ErrEmbedding = errors.New("memory: embedding")

	// ErrVectorIndex marks a failed vector index operation. Never fatal;
	// the operation degrades to its structured fallback.
	ErrVectorIndex = errors.New("memory: vector index")

	// ErrNotInitialized is returned by any operation invoked before init
	// or after shutdown.
	ErrNotInitialized = errors.New("memory: not initialized")
)

var errEmptyText = errors.New("text is empty")

// wrap ties an operation error to its taxonomy sentinel so that callers can
// match with errors.Is while the cause stays visible.
func wrap(sentinel error, op string, err error) error {
	return fmt.Errorf("%w: %s: %w", sentinel, op, err)
}
