package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category classifies what kind of information a record holds.
type Category string

const (
	CategoryPreference   Category = "preference"
	CategoryFact         Category = "fact"
	CategoryDecision     Category = "decision"
	CategoryEntity       Category = "entity"
	CategoryConversation Category = "conversation"
	CategoryOther        Category = "other"
)

// ParseCategory maps a string onto the closed category set.
// Unknown or empty values fall back to CategoryOther so that Store
// never rejects a record over its category.
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryPreference:
		return CategoryPreference
	case CategoryFact:
		return CategoryFact
	case CategoryDecision:
		return CategoryDecision
	case CategoryEntity:
		return CategoryEntity
	case CategoryConversation:
		return CategoryConversation
	default:
		return CategoryOther
	}
}

// Record is the unit of memory. The ID is the join key between the
// structured index and the vector index.
type Record struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Category   Category `json:"category"`
	Importance float64  `json:"importance"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// SessionKey is an opaque grouping tag, never interpreted here.
	SessionKey string `json:"sessionKey,omitempty"`

	// Metadata is an opaque payload, round-tripped losslessly.
	Metadata map[string]any `json:"metadata,omitempty"`

	// HasEmbedding is true only after a successful vector index insertion
	// for this id. Persisted in the structured index so it survives
	// restarts independent of vector store availability.
	HasEmbedding bool `json:"hasEmbedding"`

	// Score is set only on results of a similarity query (1 - distance).
	// It is transient and never persisted.
	Score float64 `json:"score,omitempty"`
}

// NewRecord constructs a validated record with a fresh id and timestamps.
// Text must be non-empty after trimming; importance is clamped to [0,1];
// unknown categories default to "other".
func NewRecord(text string, category string, importance float64, sessionKey string, metadata map[string]any) (*Record, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, wrap(ErrValidation, "new record", errEmptyText)
	}

	now := time.Now().UTC()
	return &Record{
		ID:         uuid.New().String(),
		Text:       text,
		Category:   ParseCategory(category),
		Importance: clamp01(importance),
		CreatedAt:  now,
		UpdatedAt:  now,
		SessionKey: sessionKey,
		Metadata:   metadata,
	}, nil
}

// clamp01 clamps v into [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
