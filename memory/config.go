package memory

// Config holds Manager configuration.
type Config struct {
	// DataDir is where both backends keep their state: one SQLite file
	// and one vector directory. Used by the wiring layer, not by the
	// Manager itself.
	DataDir string

	// MaxMemories caps total records; the lowest-importance, oldest
	// records are evicted once the cap is exceeded. Default: 10000.
	MaxMemories int

	// DefaultImportance is assigned to records stored without an
	// explicit importance, in [0,1]. Default: 0.7.
	DefaultImportance float64

	// NoisePatterns are extra regular expressions matched against the
	// full record text (case-insensitively, anchored) during recall.
	// Matching records are dropped unless the caller disables filtering.
	NoisePatterns []string

	// EmbeddingModel is an opaque model identifier handed to the
	// embedder by the wiring layer.
	EmbeddingModel string

	// EnableEmbeddings toggles the vector path. When false, recall is
	// always structured. Default: true.
	EnableEmbeddings bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxMemories:       10000,
		DefaultImportance: 0.7,
		EnableEmbeddings:  true,
	}
}

// withDefaults fills unset numeric fields. EnableEmbeddings is left as the
// caller set it.
func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxMemories <= 0 {
		out.MaxMemories = 10000
	}
	if out.DefaultImportance <= 0 {
		out.DefaultImportance = 0.7
	}
	out.DefaultImportance = clamp01(out.DefaultImportance)
	return out
}
