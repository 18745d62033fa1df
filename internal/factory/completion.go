package factory

import (
	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/config"
	"github.com/xmrt-ecosystem/assistant-server/internal/provider"
)

// NewCompletionProvider creates the chat provider, or nil when no API key is
// configured. A nil provider makes every dispatch fail with a labeled
// not-configured error rather than crashing the service.
func NewCompletionProvider(cfg *config.Config, log zerolog.Logger) (provider.CompletionProvider, error) {
	if cfg.OpenAIAPIKey == "" {
		log.Warn().Msg("chat disabled: ASSISTANT_OPENAI_API_KEY is not set")
		return nil, nil
	}
	p, err := provider.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.CompletionModel)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("model", cfg.CompletionModel).Msg("completion provider ready")
	return p, nil
}
