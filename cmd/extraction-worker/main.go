// Standalone knowledge-extraction worker. Runs the same outbox loop the
// service embeds, for deployments that scale extraction separately.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xmrt-ecosystem/assistant-server/internal/config"
	"github.com/xmrt-ecosystem/assistant-server/internal/factory"
	"github.com/xmrt-ecosystem/assistant-server/internal/logger"
	"github.com/xmrt-ecosystem/assistant-server/internal/outbox"
	"github.com/xmrt-ecosystem/assistant-server/internal/services"
)

func main() {
	lg := logger.New("extraction-worker")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := factory.NewStore(ctx, cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("store open")
	}

	idx, err := factory.NewSearchIndex(ctx, cfg, st, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("search index")
	}

	embedder, err := factory.NewEmbeddingProvider(ctx, cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("embedder")
	}
	if embedder == nil {
		lg.Fatal().Msg("extraction requires an embedding provider; set ASSISTANT_EMBED_PROVIDER")
	}

	completion, err := factory.NewCompletionProvider(cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("completion provider")
	}
	if completion == nil {
		lg.Fatal().Msg("extraction requires a completion provider; set ASSISTANT_OPENAI_API_KEY")
	}

	memorySvc := services.NewMemoryService(st, embedder, idx, lg)

	w := outbox.NewWorker(st, completion, memorySvc, outbox.Config{
		BatchSize: cfg.OutboxBatchSize,
		Interval:  time.Duration(cfg.OutboxIntervalSeconds) * time.Second,
	}, lg)

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		lg.Error().Err(err).Msg("extraction worker exit")
		os.Exit(1)
	}
}
