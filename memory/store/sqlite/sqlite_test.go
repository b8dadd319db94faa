package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnemohq/mnemo/memory"
	"github.com/mnemohq/mnemo/memory/store/sqlite"
)

func newIndex(t *testing.T) *sqlite.Index {
	t.Helper()
	idx, err := sqlite.Open(filepath.Join(t.TempDir(), "memories.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func mustInsert(t *testing.T, idx *sqlite.Index, text string, category memory.Category, importance float64, createdAt time.Time) *memory.Record {
	t.Helper()
	rec, err := memory.NewRecord(text, string(category), importance, "", nil)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if !createdAt.IsZero() {
		rec.CreatedAt = createdAt
		rec.UpdatedAt = createdAt
	}
	if err := idx.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return rec
}

func TestIndex_InsertAndQueryRoundTrip(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	rec, err := memory.NewRecord("User prefers dark mode", "preference", 0.9, "sess-1",
		map[string]any{"source": "chat", "turn": "12"})
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if err := idx.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := idx.Query(ctx, memory.Filter{Query: "dark mode"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}

	g := got[0]
	if g.ID != rec.ID || g.Text != rec.Text || g.Category != rec.Category {
		t.Errorf("round trip mutated identity fields: %+v", g)
	}
	if g.Importance != 0.9 || g.SessionKey != "sess-1" || g.HasEmbedding {
		t.Errorf("round trip mutated attributes: %+v", g)
	}
	if g.Metadata["source"] != "chat" || g.Metadata["turn"] != "12" {
		t.Errorf("metadata not lossless: %v", g.Metadata)
	}
	if !g.CreatedAt.Equal(rec.CreatedAt.Truncate(time.Nanosecond)) {
		t.Errorf("createdAt = %v, want %v", g.CreatedAt, rec.CreatedAt)
	}
}

func TestIndex_TokensAreANDed(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	mustInsert(t, idx, "green tea in the morning", memory.CategoryOther, 0.5, time.Time{})
	mustInsert(t, idx, "green light on the deploy", memory.CategoryOther, 0.5, time.Time{})

	got, err := idx.Query(ctx, memory.Filter{Query: "green tea"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Text != "green tea in the morning" {
		t.Errorf("AND semantics violated: %+v", got)
	}
}

func TestIndex_StopWordsRemoved(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	mustInsert(t, idx, "the wifi password is hunter2", memory.CategoryFact, 0.5, time.Time{})

	// Every query token is a stop word: "no text constraint", not zero hits.
	got, err := idx.Query(ctx, memory.Filter{Query: "what is my"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("stop-word-only query returned %d records, want 1", len(got))
	}

	// Surviving tokens still constrain.
	got, err = idx.Query(ctx, memory.Filter{Query: "what is my wifi password"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d records, want 1", len(got))
	}

	got, err = idx.Query(ctx, memory.Filter{Query: "what is my streaming password"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
}

func TestIndex_CategoryAndDateRange(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	mustInsert(t, idx, "older fact", memory.CategoryFact, 0.5, base.AddDate(0, 0, -10))
	inRange := mustInsert(t, idx, "newer fact", memory.CategoryFact, 0.5, base)
	mustInsert(t, idx, "newer preference", memory.CategoryPreference, 0.5, base)

	got, err := idx.Query(ctx, memory.Filter{
		Category: memory.CategoryFact,
		From:     base.AddDate(0, 0, -1),
		To:       base.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ID != inRange.ID {
		t.Errorf("filter returned %+v, want only the in-range fact", got)
	}

	// Range bounds are inclusive.
	got, err = idx.Query(ctx, memory.Filter{Category: memory.CategoryFact, From: base, To: base})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ID != inRange.ID {
		t.Errorf("inclusive bound missed the record: %+v", got)
	}
}

func TestIndex_OrderingAndLimit(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	mustInsert(t, idx, "low importance", memory.CategoryOther, 0.2, base)
	mustInsert(t, idx, "high importance old", memory.CategoryOther, 0.8, base.Add(-time.Hour))
	mustInsert(t, idx, "high importance new", memory.CategoryOther, 0.8, base)

	got, err := idx.Query(ctx, memory.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	wantOrder := []string{"high importance new", "high importance old", "low importance"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d records, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].Text != want {
			t.Errorf("position %d = %q, want %q", i, got[i].Text, want)
		}
	}

	got, err = idx.Query(ctx, memory.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("limit ignored: got %d records", len(got))
	}
}

func TestIndex_DeleteByIDs(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	a := mustInsert(t, idx, "first", memory.CategoryOther, 0.5, time.Time{})
	b := mustInsert(t, idx, "second", memory.CategoryOther, 0.5, time.Time{})

	n, err := idx.DeleteByIDs(ctx, []string{a.ID, b.ID, "no-such-id"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d rows, want 2", n)
	}

	n, err = idx.DeleteByIDs(ctx, []string{a.ID})
	if err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if n != 0 {
		t.Errorf("repeat delete removed %d rows, want 0", n)
	}

	n, err = idx.DeleteByIDs(ctx, nil)
	if err != nil || n != 0 {
		t.Errorf("empty delete = (%d, %v), want (0, nil)", n, err)
	}
}

func TestIndex_MarkEmbedded(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	rec := mustInsert(t, idx, "to be embedded", memory.CategoryOther, 0.5, time.Time{})

	if err := idx.MarkEmbedded(ctx, rec.ID); err != nil {
		t.Fatalf("mark embedded: %v", err)
	}

	got, err := idx.GetByIDs(ctx, []string{rec.ID})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	g, ok := got[rec.ID]
	if !ok {
		t.Fatal("record vanished")
	}
	if !g.HasEmbedding {
		t.Error("hasEmbedding not set")
	}
	if !g.UpdatedAt.After(rec.UpdatedAt) {
		t.Errorf("updatedAt not bumped: %v <= %v", g.UpdatedAt, rec.UpdatedAt)
	}

	// Racing a delete is a no-op, not an error.
	if err := idx.MarkEmbedded(ctx, "no-such-id"); err != nil {
		t.Errorf("mark embedded on absent id: %v", err)
	}
}

func TestIndex_GetByIDsDropsMissing(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	rec := mustInsert(t, idx, "present", memory.CategoryOther, 0.5, time.Time{})

	got, err := idx.GetByIDs(ctx, []string{rec.ID, "gone"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d records, want 1", len(got))
	}
	if _, ok := got["gone"]; ok {
		t.Error("missing id materialized a record")
	}
}

func TestIndex_Counts(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	mustInsert(t, idx, "pref one", memory.CategoryPreference, 0.5, time.Time{})
	mustInsert(t, idx, "pref two", memory.CategoryPreference, 0.5, time.Time{})
	mustInsert(t, idx, "a fact", memory.CategoryFact, 0.5, time.Time{})

	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}

	byCat, err := idx.CountByCategory(ctx)
	if err != nil {
		t.Fatalf("count by category: %v", err)
	}
	if byCat[memory.CategoryPreference] != 2 || byCat[memory.CategoryFact] != 1 {
		t.Errorf("byCategory = %v", byCat)
	}
}

func TestIndex_EvictionCandidates(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	oldLow := mustInsert(t, idx, "old low", memory.CategoryOther, 0.1, base.Add(-time.Hour))
	newLow := mustInsert(t, idx, "new low", memory.CategoryOther, 0.1, base)
	mustInsert(t, idx, "high", memory.CategoryOther, 0.9, base.Add(-2*time.Hour))

	ids, err := idx.EvictionCandidates(ctx, 2)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(ids) != 2 || ids[0] != oldLow.ID || ids[1] != newLow.ID {
		t.Errorf("candidates = %v, want [%s %s]", ids, oldLow.ID, newLow.ID)
	}
}

func TestIndex_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.db")
	ctx := context.Background()

	idx, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec, err := memory.NewRecord("durable note", "fact", 0.5, "", nil)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if err := idx.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx, err = sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	got, err := idx.Query(ctx, memory.Filter{Query: "durable"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ID != rec.ID {
		t.Errorf("record did not survive reopen: %+v", got)
	}
}
