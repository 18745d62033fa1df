package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/config"
	"github.com/xmrt-ecosystem/assistant-server/internal/searchindex"
	storepkg "github.com/xmrt-ecosystem/assistant-server/internal/store"
)

// EnsureSchemer is implemented by indexes that need remote schema bootstrap.
type EnsureSchemer interface {
	EnsureSchema(ctx context.Context) error
}

// NewSearchIndex creates the configured search index. Weaviate schema
// creation runs asynchronously so startup is not gated on the remote.
func NewSearchIndex(ctx context.Context, cfg *config.Config, st storepkg.Store, log zerolog.Logger) (searchindex.Index, error) {
	switch cfg.VectorIndex {
	case "weaviate":
		if cfg.WeaviateURL == "" {
			return nil, fmt.Errorf("ASSISTANT_WEAVIATE_URL is required when VECTOR_INDEX=weaviate")
		}
		idx, err := searchindex.NewWeaviateIndex(cfg.WeaviateURL)
		if err != nil {
			return nil, err
		}
		if es, ok := idx.(EnsureSchemer); ok {
			go func() {
				bootstrapCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				defer cancel()
				if err := es.EnsureSchema(bootstrapCtx); err != nil {
					log.Warn().Err(err).Str("url", cfg.WeaviateURL).Msg("search index bootstrap failed")
				} else {
					log.Debug().Str("url", cfg.WeaviateURL).Msg("search index bootstrap completed")
				}
			}()
		}
		return idx, nil
	case "store":
		return searchindex.NewStoreIndex(st), nil
	default:
		return nil, fmt.Errorf("unknown VECTOR_INDEX: %s", cfg.VectorIndex)
	}
}
