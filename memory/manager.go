package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"
)

// builtinNoise matches low-information utterances: short filler
// acknowledgements and all-whitespace text.
var builtinNoise = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(ok|okay|k|yes|yep|yeah|no|nope|sure|thanks|thank you|thx|got it|cool|nice|great|hmm+|haha|lol)[.!]?$`),
	regexp.MustCompile(`^\s*$`),
}

// embedQueueSize bounds in-flight embedding work. A full queue drops the
// job and leaves the record structured-only; it is retried on the next
// process restart only if the caller re-stores it.
const embedQueueSize = 256

type embedJob struct {
	id   string
	text string
}

// Manager is the orchestration layer over the two indexes. It owns
// cross-store consistency, query routing, noise filtering, retention and
// the background embedding queue. It keeps no persistent state of its own.
type Manager struct {
	cfg        Config
	structured StructuredIndex
	vector     VectorIndex
	gateway    *Gateway
	noise      []*regexp.Regexp

	embedCh chan embedJob
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewManager wires the orchestrator. structured is required; vector and
// gateway may be nil, in which case every recall is structured. A nil cfg
// uses DefaultConfig.
//
// The embedding pipeline and vector connection are owned by this instance,
// never shared globally, so independent managers can coexist in one
// process.
func NewManager(structured StructuredIndex, vector VectorIndex, gateway *Gateway, cfg *Config) (*Manager, error) {
	if structured == nil {
		return nil, wrap(ErrValidation, "new manager", errors.New("structured index is required"))
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	noise := make([]*regexp.Regexp, 0, len(builtinNoise)+len(cfg.NoisePatterns))
	noise = append(noise, builtinNoise...)
	for _, pat := range cfg.NoisePatterns {
		re, err := regexp.Compile(`(?i)^(?:` + pat + `)$`)
		if err != nil {
			return nil, wrap(ErrValidation, "new manager", fmt.Errorf("noise pattern %q: %w", pat, err))
		}
		noise = append(noise, re)
	}

	m := &Manager{
		cfg:        cfg.withDefaults(),
		structured: structured,
		vector:     vector,
		gateway:    gateway,
		noise:      noise,
	}

	if m.embeddingsReady() {
		m.embedCh = make(chan embedJob, embedQueueSize)
		m.wg.Add(1)
		go m.embedWorker()
	}

	return m, nil
}

// embeddingsReady reports whether the vector write path is engaged at all.
func (m *Manager) embeddingsReady() bool {
	return m.cfg.EnableEmbeddings && m.gateway != nil && m.vector != nil
}

// StoreParams are the inputs to Store. Only Text is required.
type StoreParams struct {
	Text       string         `json:"text"`
	Category   string         `json:"category,omitempty"`
	Importance *float64       `json:"importance,omitempty"`
	SessionKey string         `json:"sessionKey,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Store persists a new record. The structured insert is synchronous and
// fatal on failure; embedding and vector insertion happen on the background
// queue and any failure there leaves the record retrievable via structured
// search with HasEmbedding=false. Retention runs before returning so the
// stored count stays bounded under sequential calls.
func (m *Manager) Store(ctx context.Context, p StoreParams) (*Record, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}

	importance := m.cfg.DefaultImportance
	if p.Importance != nil {
		importance = *p.Importance
	}

	rec, err := NewRecord(p.Text, p.Category, importance, p.SessionKey, p.Metadata)
	if err != nil {
		return nil, err
	}

	if err := m.structured.Insert(ctx, rec); err != nil {
		return nil, err
	}

	if m.embeddingsReady() && m.vector.Available() {
		m.enqueueEmbed(rec.ID, rec.Text)
	}

	m.runRetention(ctx)

	// The returned record reflects pre-embedding state.
	return rec, nil
}

// enqueueEmbed hands a record to the background worker without blocking
// the caller. A full queue drops the job with a log line.
func (m *Manager) enqueueEmbed(id, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.embedCh == nil {
		return
	}
	select {
	case m.embedCh <- embedJob{id: id, text: text}:
	default:
		log.Printf("[MEMORY] embed queue full, record %s stays structured-only", id)
	}
}

// embedWorker drains the embedding queue. Every failure is swallowed with
// a log line: embedding is never fatal to a stored record.
func (m *Manager) embedWorker() {
	defer m.wg.Done()
	for job := range m.embedCh {
		m.embedOne(job)
	}
}

func (m *Manager) embedOne(job embedJob) {
	ctx := context.Background()

	vec, err := m.gateway.Embed(ctx, job.text)
	if err != nil {
		log.Printf("[MEMORY] embed record %s: %v", job.id, err)
		return
	}
	if err := m.vector.Upsert(ctx, job.id, vec, job.text); err != nil {
		log.Printf("[MEMORY] vector upsert record %s: %v", job.id, err)
		return
	}
	// A concurrent delete makes this a no-op; the vector side tolerates
	// deleting an absent id, so the stores stay reconciled either way.
	if err := m.structured.MarkEmbedded(ctx, job.id); err != nil {
		log.Printf("[MEMORY] mark embedded record %s: %v", job.id, err)
	}
}

// runRetention evicts the lowest-importance, oldest records once the count
// exceeds the cap. Under concurrent stores the bound is soft by the number
// of in-flight calls.
func (m *Manager) runRetention(ctx context.Context) {
	count, err := m.structured.Count(ctx)
	if err != nil {
		log.Printf("[MEMORY] retention count: %v", err)
		return
	}
	excess := count - m.cfg.MaxMemories
	if excess <= 0 {
		return
	}

	victims, err := m.structured.EvictionCandidates(ctx, excess)
	if err != nil {
		log.Printf("[MEMORY] retention candidates: %v", err)
		return
	}
	deleted, err := m.structured.DeleteByIDs(ctx, victims)
	if err != nil {
		log.Printf("[MEMORY] retention delete: %v", err)
		return
	}
	m.vectorDelete(ctx, victims)
	log.Printf("[MEMORY] retention evicted %d records (cap %d)", deleted, m.cfg.MaxMemories)
}

// RecallParams are the inputs to Recall.
type RecallParams struct {
	Query    string    `json:"query"`
	Mode     string    `json:"mode,omitempty"` // structured | semantic | auto
	Category string    `json:"category,omitempty"`
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`
	Limit    int       `json:"limit,omitempty"` // default 5

	// FilterNoise defaults to true when nil.
	FilterNoise *bool `json:"filterNoise,omitempty"`
}

// Recall returns up to Limit records. Semantic results carry a Score of
// 1 - distance; structured results carry none. A semantic recall under a
// degraded vector index silently returns structured results instead.
func (m *Manager) Recall(ctx context.Context, p RecallParams) ([]Record, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 5
	}

	mode := ParseMode(p.Mode)
	if mode == ModeAuto {
		mode = Classify(p.Query)
	}

	var results []Record
	if mode == ModeSemantic && m.embeddingsReady() && m.vector.Available() {
		semantic, err := m.semanticRecall(ctx, p.Query, limit)
		switch {
		case err != nil:
			log.Printf("[MEMORY] semantic recall failed, falling back to structured: %v", err)
		case len(semantic) == 0:
			log.Printf("[MEMORY] semantic recall empty, falling back to structured")
		default:
			results = semantic
		}
	}

	if results == nil {
		f := Filter{
			Query: p.Query,
			From:  p.From,
			To:    p.To,
			Limit: 2 * limit, // room for downstream noise filtering
		}
		if strings.TrimSpace(p.Category) != "" {
			f.Category = ParseCategory(p.Category)
		}
		structured, err := m.structured.Query(ctx, f)
		if err != nil {
			return nil, err
		}
		results = structured
	}

	if p.FilterNoise == nil || *p.FilterNoise {
		results = m.filterNoise(results)
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// semanticRecall answers by vector similarity, hydrating each neighbor id
// from the structured index. Ids deleted after being indexed are silently
// dropped; vector-search order is preserved.
func (m *Manager) semanticRecall(ctx context.Context, query string, limit int) ([]Record, error) {
	vec, err := m.gateway.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	neighbors, err := m.vector.TopK(ctx, vec, 2*limit)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	hydrated, err := m.structured.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]Record, 0, len(neighbors))
	for _, n := range neighbors {
		rec, ok := hydrated[n.ID]
		if !ok {
			continue
		}
		rec.Score = 1 - n.Distance
		results = append(results, rec)
	}
	return results, nil
}

// filterNoise drops records whose full text matches a noise pattern.
func (m *Manager) filterNoise(recs []Record) []Record {
	out := recs[:0]
	for _, rec := range recs {
		if m.isNoise(rec.Text) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (m *Manager) isNoise(text string) bool {
	text = strings.TrimSpace(text)
	for _, re := range m.noise {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// ForgetParams name the records to delete: a direct id, or a query whose
// recall matches become the target set.
type ForgetParams struct {
	MemoryID string `json:"memoryId,omitempty"`
	Query    string `json:"query,omitempty"`
}

// Forget removes records from both indexes. The returned count is the
// structured index's actual row-delete count; vector removal is
// best-effort and a failure there still leaves the record deleted.
// Forgetting an already-absent id returns 0, never an error.
func (m *Manager) Forget(ctx context.Context, p ForgetParams) (int, error) {
	if err := m.ensureOpen(); err != nil {
		return 0, err
	}

	var ids []string
	switch {
	case p.MemoryID != "":
		ids = []string{p.MemoryID}
	case strings.TrimSpace(p.Query) != "":
		// Noise filtering is disabled so "forget everything matching X"
		// is not defeated by the filter. The resolution limit is the
		// store cap, not a fixed page size: a broad query can clear
		// every match.
		off := false
		matches, err := m.Recall(ctx, RecallParams{
			Query:       p.Query,
			Mode:        string(ModeStructured),
			Limit:       m.cfg.MaxMemories,
			FilterNoise: &off,
		})
		if err != nil {
			return 0, err
		}
		for _, rec := range matches {
			ids = append(ids, rec.ID)
		}
	default:
		return 0, wrap(ErrValidation, "forget", errors.New("memoryId or query is required"))
	}

	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := m.structured.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	m.vectorDelete(ctx, ids)
	return deleted, nil
}

// vectorDelete removes ids from the vector index, logging instead of
// failing: the vector side tolerates absent ids and a transient error here
// never blocks a delete.
func (m *Manager) vectorDelete(ctx context.Context, ids []string) {
	if m.vector == nil || !m.vector.Available() || len(ids) == 0 {
		return
	}
	if err := m.vector.Delete(ctx, ids...); err != nil {
		log.Printf("[MEMORY] vector delete (%d ids): %v", len(ids), err)
	}
}

// Stats is an observability snapshot.
type Stats struct {
	Count           int              `json:"count"`
	ByCategory      map[Category]int `json:"byCategory"`
	VectorAvailable bool             `json:"vectorAvailable"`
	PendingEmbeds   int              `json:"pendingEmbeds"`
}

// Stats reports aggregate counts and backend health.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}

	count, err := m.structured.Count(ctx)
	if err != nil {
		return nil, err
	}
	byCat, err := m.structured.CountByCategory(ctx)
	if err != nil {
		return nil, err
	}

	s := &Stats{
		Count:           count,
		ByCategory:      byCat,
		VectorAvailable: m.vector != nil && m.vector.Available(),
	}
	if m.embedCh != nil {
		s.PendingEmbeds = len(m.embedCh)
	}
	return s, nil
}

func (m *Manager) ensureOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotInitialized
	}
	return nil
}

// Close stops intake, drains the embedding queue deterministically
// (in-flight attempts fail safely, they are never awaited by callers) and
// closes both backends. Subsequent operations return ErrNotInitialized.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.embedCh != nil {
		close(m.embedCh)
	}
	m.mu.Unlock()

	m.wg.Wait()

	var errs []error
	if m.vector != nil {
		if err := m.vector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close vector index: %w", err))
		}
	}
	if err := m.structured.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close structured index: %w", err))
	}
	return errors.Join(errs...)
}
