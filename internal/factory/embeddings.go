package factory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/config"
	emb "github.com/xmrt-ecosystem/assistant-server/internal/embeddings"
	embollama "github.com/xmrt-ecosystem/assistant-server/internal/embeddings/ollama"
	embopenai "github.com/xmrt-ecosystem/assistant-server/internal/embeddings/openai"
)

// NewEmbeddingProvider creates the configured embedding provider, or nil when
// embeddings are disabled. A nil provider leaves memory storage unconfigured
// but the rest of the service fully operational.
func NewEmbeddingProvider(ctx context.Context, cfg *config.Config, log zerolog.Logger) (emb.Provider, error) {
	var provider emb.Provider

	switch cfg.EmbedProvider {
	case "none":
		return nil, nil
	case "ollama":
		provider = embollama.New(cfg.OllamaURL, cfg.EmbedModel)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Warn().Msg("embeddings disabled: ASSISTANT_OPENAI_API_KEY is not set")
			return nil, nil
		}
		p, err := embopenai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbedModel)
		if err != nil {
			return nil, err
		}
		provider = p
	}
	if provider == nil {
		return nil, nil
	}

	// Warmup is advisory only; a cold provider still serves requests.
	go func() {
		warmupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if vec, err := provider.Embed(warmupCtx, "warmup"); err != nil || len(vec) == 0 {
			log.Warn().Err(err).
				Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup failed")
		} else {
			log.Debug().Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup completed")
		}
	}()

	return provider, nil
}
