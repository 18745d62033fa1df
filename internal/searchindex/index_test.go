package searchindex

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/store/sqlite"
)

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 1},
		{"empty", nil, nil, 0},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("cosine = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStoreIndexQuery(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "assistant.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx := context.Background()

	seed := []struct {
		content string
		ctype   string
		vec     []float32
	}{
		{"mining note", "knowledge", []float32{1, 0, 0}},
		{"governance note", "knowledge", []float32{0, 1, 0}},
		{"mixed note", "conversation", []float32{0.7, 0.7, 0}},
	}
	for _, s := range seed {
		if _, err := st.Memories().Create(ctx, &model.MemoryEntry{
			Content:     s.content,
			ContextType: s.ctype,
			Importance:  0.5,
			Embedding:   s.vec,
		}); err != nil {
			t.Fatalf("seed %q: %v", s.content, err)
		}
	}

	idx := NewStoreIndex(st)

	out, err := idx.Query(ctx, []float32{1, 0, 0}, 10, 0.0, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("results = %d, want 3", len(out))
	}
	if out[0].Content != "mining note" {
		t.Fatalf("best = %q, want mining note", out[0].Content)
	}
	for i := 1; i < len(out); i++ {
		if out[i].Similarity > out[i-1].Similarity {
			t.Fatal("results must be sorted by descending similarity")
		}
	}

	// Threshold filters orthogonal entries out.
	out, err = idx.Query(ctx, []float32{1, 0, 0}, 10, 0.5, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("thresholded results = %d, want 2", len(out))
	}

	// Context-type filter applies before ranking.
	out, err = idx.Query(ctx, []float32{1, 0, 0}, 10, 0.0, "conversation")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].Content != "mixed note" {
		t.Fatalf("filtered results = %+v", out)
	}

	// Limit truncates after ranking.
	out, err = idx.Query(ctx, []float32{1, 0, 0}, 1, 0.0, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].Content != "mining note" {
		t.Fatalf("limited results = %+v", out)
	}
}

func TestStoreIndexQueryScansEntireCorpus(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "assistant.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx := context.Background()

	// The lone match goes in first, so any newest-first page cap would
	// drop it once the filler pushes it past the page boundary.
	if _, err := st.Memories().Create(ctx, &model.MemoryEntry{
		Content:     "oldest mining note",
		ContextType: "knowledge",
		Importance:  0.5,
		Embedding:   []float32{0, 0, 1},
	}); err != nil {
		t.Fatalf("seed match: %v", err)
	}
	for i := 0; i < 1050; i++ {
		if _, err := st.Memories().Create(ctx, &model.MemoryEntry{
			Content:     "filler",
			ContextType: "knowledge",
			Importance:  0.1,
			Embedding:   []float32{1, 0, 0},
		}); err != nil {
			t.Fatalf("seed filler %d: %v", i, err)
		}
	}

	out, err := NewStoreIndex(st).Query(ctx, []float32{0, 0, 1}, 5, 0.5, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].Content != "oldest mining note" {
		t.Fatalf("results = %+v, want the oldest entry", out)
	}
}
