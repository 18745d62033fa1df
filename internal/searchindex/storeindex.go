package searchindex

import (
	"context"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/store"
)

// storeIndex answers similarity queries by scanning embeddings out of the
// relational store. Suitable for local single-node deployments where the
// corpus is small; the store itself is the source of truth, so upserts and
// deletes are no-ops here.
type storeIndex struct {
	st store.Store
}

// NewStoreIndex builds an Index over the given store.
func NewStoreIndex(st store.Store) Index { return &storeIndex{st: st} }

func (s *storeIndex) UpsertMemory(ctx context.Context, m *model.MemoryEntry) error { return nil }

func (s *storeIndex) DeleteMemory(ctx context.Context, memoryID string) error { return nil }

func (s *storeIndex) Query(ctx context.Context, vec []float32, limit int, threshold float64, contextType string) ([]*model.MemoryEntry, error) {
	// Ranking must see the whole corpus; a capped page would silently drop
	// the oldest entries.
	entries, err := s.st.Memories().List(ctx, contextType, 0)
	if err != nil {
		return nil, err
	}
	return rank(entries, vec, limit, threshold), nil
}

// HealthPing implements health.HealthPinger by delegating to the store.
func (s *storeIndex) HealthPing(ctx context.Context) error {
	_, err := s.st.Memories().List(ctx, "", 1)
	return err
}
