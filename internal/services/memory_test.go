package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/searchindex"
)

// fakeEmbedder returns canned vectors per input text.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func TestStoreMemoryPersistsAndEnqueuesExtraction(t *testing.T) {
	st := newTestStore(t)
	emb := &fakeEmbedder{}
	svc := NewMemoryService(st, emb, searchindex.NewStoreIndex(st), zerolog.Nop())
	ctx := context.Background()

	entry, err := svc.StoreMemory(ctx, "the DAO treasury holds 1200 XMR", "conversation", 0.8, nil, nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if entry.MemoryID == "" {
		t.Fatal("entry should have an id")
	}

	got, err := st.Memories().Get(ctx, entry.MemoryID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Embedding) == 0 {
		t.Fatal("persisted entry must carry its embedding")
	}

	jobs, err := st.Outbox().Lease(ctx, 10)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("extraction jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Payload["memoryId"] != entry.MemoryID {
		t.Fatalf("job payload = %v", jobs[0].Payload)
	}
}

func TestStoreMemoryEmbeddingFailureStoresNothing(t *testing.T) {
	st := newTestStore(t)
	emb := &fakeEmbedder{err: errors.New("model overloaded")}
	svc := NewMemoryService(st, emb, searchindex.NewStoreIndex(st), zerolog.Nop())
	ctx := context.Background()

	_, err := svc.StoreMemory(ctx, "never landed", "conversation", 0.5, nil, nil)
	if !errors.Is(err, model.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}

	entries, err := st.Memories().List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("nothing should be stored on embedding failure, got %d entries", len(entries))
	}
	jobs, _ := st.Outbox().Lease(ctx, 10)
	if len(jobs) != 0 {
		t.Fatal("no extraction job should be enqueued on embedding failure")
	}
}

func TestStoreMemoryWithoutEmbedderIsNotConfigured(t *testing.T) {
	st := newTestStore(t)
	svc := NewMemoryService(st, nil, searchindex.NewStoreIndex(st), zerolog.Nop())

	_, err := svc.StoreMemory(context.Background(), "x", "conversation", 0.5, nil, nil)
	if !errors.Is(err, model.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestQueryMemoryRanksBySimilarity(t *testing.T) {
	st := newTestStore(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"mining":       {1, 0, 0},
		"governance":   {0, 1, 0},
		"mixed":        {0.7, 0.7, 0},
		"about mining": {1, 0, 0},
	}}
	svc := NewMemoryService(st, emb, searchindex.NewStoreIndex(st), zerolog.Nop())
	ctx := context.Background()

	for _, content := range []string{"mining", "governance", "mixed"} {
		if _, err := svc.StoreMemory(ctx, content, "knowledge", 0.5, nil, nil); err != nil {
			t.Fatalf("store %q: %v", content, err)
		}
	}

	out, err := svc.QueryMemory(ctx, "about mining", 10, 0.5, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	// "mining" is an exact direction match, "mixed" clears 0.5, "governance"
	// is orthogonal and filtered out.
	if len(out) != 2 {
		t.Fatalf("results = %d, want 2", len(out))
	}
	if out[0].Content != "mining" {
		t.Fatalf("best match = %q, want mining", out[0].Content)
	}
	if out[0].Similarity < out[1].Similarity {
		t.Fatal("results must be sorted by descending similarity")
	}
}

func TestQueryMemoryEmptyResultIsEmptySlice(t *testing.T) {
	st := newTestStore(t)
	svc := NewMemoryService(st, &fakeEmbedder{}, searchindex.NewStoreIndex(st), zerolog.Nop())

	out, err := svc.QueryMemory(context.Background(), "anything", 5, 0, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("want empty slice, got %v", out)
	}
}

func TestQueryMemoryValidation(t *testing.T) {
	st := newTestStore(t)
	svc := NewMemoryService(st, &fakeEmbedder{}, searchindex.NewStoreIndex(st), zerolog.Nop())

	if _, err := svc.QueryMemory(context.Background(), "  ", 5, 0, ""); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
