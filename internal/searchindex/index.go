// Package searchindex provides nearest-neighbor retrieval over memory entries.
package searchindex

import (
	"context"
	"math"
	"sort"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
)

// Index provides vector similarity search and index maintenance.
// Query results are sorted by descending similarity; every returned entry
// has Similarity >= threshold.
type Index interface {
	UpsertMemory(ctx context.Context, m *model.MemoryEntry) error
	Query(ctx context.Context, vec []float32, limit int, threshold float64, contextType string) ([]*model.MemoryEntry, error)
	DeleteMemory(ctx context.Context, memoryID string) error
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector is empty or zero-length.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func rank(entries []*model.MemoryEntry, vec []float32, limit int, threshold float64) []*model.MemoryEntry {
	out := make([]*model.MemoryEntry, 0, len(entries))
	for _, e := range entries {
		sim := CosineSimilarity(vec, e.Embedding)
		if sim < threshold {
			continue
		}
		c := *e
		c.Similarity = sim
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
