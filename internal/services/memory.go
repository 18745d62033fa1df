package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/embeddings"
	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/searchindex"
	"github.com/xmrt-ecosystem/assistant-server/internal/store"
)

// MemoryService orchestrates long-term memory use cases.
type MemoryService struct {
	store store.Store
	emb   embeddings.Provider
	idx   searchindex.Index
	log   zerolog.Logger
}

func NewMemoryService(s store.Store, emb embeddings.Provider, idx searchindex.Index, log zerolog.Logger) *MemoryService {
	return &MemoryService{store: s, emb: emb, idx: idx, log: log}
}

// StoreMemory embeds content and persists it. The embedding comes first: when
// embedding generation fails nothing is stored, so every persisted entry is
// searchable. A knowledge-extraction job is enqueued in the same transaction.
func (s *MemoryService) StoreMemory(ctx context.Context, content, contextType string, importance float64, sessionID *string, metadata map[string]interface{}) (*model.MemoryEntry, error) {
	if s.emb == nil {
		return nil, fmt.Errorf("memory storage: %w", model.ErrNotConfigured)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty memory content", model.ErrInvalidInput)
	}
	if contextType == "" {
		contextType = "general"
	}
	if importance <= 0 {
		importance = 0.5
	}

	vec, err := s.emb.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embedding generation: %w: %v", model.ErrProvider, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding generation: %w: empty vector", model.ErrProvider)
	}

	entry, err := s.store.Memories().CreateWithExtraction(ctx, &model.MemoryEntry{
		Content:     content,
		ContextType: contextType,
		Importance:  importance,
		Embedding:   vec,
		SessionID:   sessionID,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}

	// Index propagation is best effort; the store is the source of truth and
	// the store-backed index needs no upsert at all.
	if err := s.idx.UpsertMemory(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("memory_id", entry.MemoryID).Msg("index upsert failed")
	}
	return entry, nil
}

// StoreDerived persists a fact produced by knowledge extraction. Unlike
// StoreMemory it does not enqueue another extraction job.
func (s *MemoryService) StoreDerived(ctx context.Context, content, contextType string, importance float64, metadata map[string]interface{}) (*model.MemoryEntry, error) {
	if s.emb == nil {
		return nil, fmt.Errorf("memory storage: %w", model.ErrNotConfigured)
	}
	vec, err := s.emb.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embedding generation: %w: %v", model.ErrProvider, err)
	}
	entry, err := s.store.Memories().Create(ctx, &model.MemoryEntry{
		Content:     content,
		ContextType: contextType,
		Importance:  importance,
		Embedding:   vec,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("store derived memory: %w", err)
	}
	if err := s.idx.UpsertMemory(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("memory_id", entry.MemoryID).Msg("index upsert failed")
	}
	return entry, nil
}

// QueryMemory embeds the query and returns entries ranked by descending
// similarity, all clearing the threshold. Nothing matching is an empty slice.
func (s *MemoryService) QueryMemory(ctx context.Context, query string, limit int, threshold float64, contextType string) ([]*model.MemoryEntry, error) {
	if s.emb == nil {
		return nil, fmt.Errorf("memory query: %w", model.ErrNotConfigured)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", model.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 5
	}

	vec, err := s.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding generation: %w: %v", model.ErrProvider, err)
	}
	out, err := s.idx.Query(ctx, vec, limit, threshold, contextType)
	if err != nil {
		return nil, fmt.Errorf("memory query: %w", err)
	}
	if out == nil {
		out = []*model.MemoryEntry{}
	}
	return out, nil
}
