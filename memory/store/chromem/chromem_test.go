package chromem_test

import (
	"context"
	"math"
	"testing"

	chromemstore "github.com/mnemohq/mnemo/memory/store/chromem"
)

// unit returns a 4-dim unit vector with 1 at position i.
func unit(i int) []float32 {
	v := make([]float32, 4)
	v[i] = 1
	return v
}

func newIndex(t *testing.T) *chromemstore.Index {
	t.Helper()
	idx, err := chromemstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndex_UpsertAndTopK(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	if !idx.Available() {
		t.Fatal("index not available after open")
	}

	if err := idx.Upsert(ctx, "a", unit(0), "alpha"); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if err := idx.Upsert(ctx, "b", unit(1), "beta"); err != nil {
		t.Fatalf("upsert b: %v", err)
	}
	if err := idx.Upsert(ctx, "c", unit(2), "gamma"); err != nil {
		t.Fatalf("upsert c: %v", err)
	}

	got, err := idx.TopK(ctx, unit(0), 2)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d neighbors, want 2", len(got))
	}
	if got[0].ID != "a" {
		t.Errorf("nearest = %q, want a", got[0].ID)
	}
	if got[0].Distance > 1e-5 {
		t.Errorf("identical vector distance = %v, want ~0", got[0].Distance)
	}
	if got[1].Distance < got[0].Distance {
		t.Errorf("neighbors not ascending by distance: %v", got)
	}
}

func TestIndex_TopKClampsToCount(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, "only", unit(0), "only"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := idx.TopK(ctx, unit(0), 10)
	if err != nil {
		t.Fatalf("topk above count: %v", err)
	}
	if len(got) != 1 || got[0].ID != "only" {
		t.Errorf("got %v, want the single entry", got)
	}
}

func TestIndex_TopKEmptyIndex(t *testing.T) {
	idx := newIndex(t)

	got, err := idx.TopK(context.Background(), unit(0), 5)
	if err != nil {
		t.Fatalf("topk on empty index: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d neighbors from empty index, want 0", len(got))
	}
}

func TestIndex_UpsertReplacesByID(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, "a", unit(0), "first"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Upsert(ctx, "a", unit(1), "second"); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := idx.TopK(ctx, unit(1), 5)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d neighbors, want 1 (same id upserted twice)", len(got))
	}
	if got[0].Distance > 1e-5 {
		t.Errorf("replaced vector not in effect, distance = %v", got[0].Distance)
	}
}

func TestIndex_Delete(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, "a", unit(0), "alpha"); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if err := idx.Upsert(ctx, "b", unit(1), "beta"); err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	if err := idx.Delete(ctx, "a", "never-existed"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := idx.TopK(ctx, unit(0), 5)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	for _, n := range got {
		if n.ID == "a" {
			t.Error("deleted id still returned")
		}
	}
	if len(got) != 1 {
		t.Errorf("got %d neighbors after delete, want 1", len(got))
	}

	// Deleting with no surviving ids or before any upsert is a no-op.
	if err := idx.Delete(ctx); err != nil {
		t.Errorf("empty delete: %v", err)
	}
}

func TestIndex_DeleteBeforeFirstUpsert(t *testing.T) {
	idx := newIndex(t)

	if err := idx.Delete(context.Background(), "phantom"); err != nil {
		t.Errorf("delete on fresh index: %v", err)
	}
}

func TestIndex_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := chromemstore.Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Upsert(ctx, "persisted", unit(2), "still here"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx, err = chromemstore.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	got, err := idx.TopK(ctx, unit(2), 1)
	if err != nil {
		t.Fatalf("topk after reopen: %v", err)
	}
	if len(got) != 1 || got[0].ID != "persisted" {
		t.Fatalf("entry did not survive reopen: %v", got)
	}
}

func TestIndex_DistanceInRange(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, "a", unit(0), "alpha"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Orthogonal query: cosine similarity 0, distance 1.
	got, err := idx.TopK(ctx, unit(3), 1)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d neighbors, want 1", len(got))
	}
	if math.Abs(got[0].Distance-1) > 1e-5 {
		t.Errorf("orthogonal distance = %v, want 1", got[0].Distance)
	}
}
