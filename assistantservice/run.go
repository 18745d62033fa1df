// Package assistantservice is the composition root of the XMRT assistant
// HTTP service: configuration, dependency wiring, routing, health monitoring
// and graceful shutdown.
package assistantservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/api"
	"github.com/xmrt-ecosystem/assistant-server/internal/api/recovery"
	"github.com/xmrt-ecosystem/assistant-server/internal/config"
	"github.com/xmrt-ecosystem/assistant-server/internal/dispatch"
	emb "github.com/xmrt-ecosystem/assistant-server/internal/embeddings"
	"github.com/xmrt-ecosystem/assistant-server/internal/factory"
	"github.com/xmrt-ecosystem/assistant-server/internal/health"
	"github.com/xmrt-ecosystem/assistant-server/internal/logger"
	"github.com/xmrt-ecosystem/assistant-server/internal/market"
	"github.com/xmrt-ecosystem/assistant-server/internal/outbox"
	"github.com/xmrt-ecosystem/assistant-server/internal/provider"
	"github.com/xmrt-ecosystem/assistant-server/internal/registry"
	"github.com/xmrt-ecosystem/assistant-server/internal/searchindex"
	"github.com/xmrt-ecosystem/assistant-server/internal/services"
	"github.com/xmrt-ecosystem/assistant-server/internal/store"
	"github.com/xmrt-ecosystem/assistant-server/internal/tools"
)

// Run starts the assistant service and blocks until shutdown or error.
func Run() error {
	log := logger.New("assistant-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("vector_index", cfg.VectorIndex).
		Str("embed_provider", cfg.EmbedProvider).
		Str("completion_model", cfg.CompletionModel).
		Msg("Assistant service starting")

	ctx, stop := newServerContext()
	defer stop()

	deps, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	router := buildRouter(deps, cfg, log)

	svcHealth := startHealthCheckers(ctx, cfg, log, deps)
	deps.health = svcHealth

	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	// In-process extraction worker: needs a completion provider to distill
	// knowledge and an embedder to store what it distills.
	if deps.completion != nil && deps.embedder != nil {
		worker := outbox.NewWorker(deps.store, deps.completion, deps.memorySvc, outbox.Config{
			BatchSize: cfg.OutboxBatchSize,
			Interval:  time.Duration(cfg.OutboxIntervalSeconds) * time.Second,
		}, log)
		go func() {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Stack().Err(err).Msg("extraction worker stopped")
			}
		}()
	} else {
		log.Warn().Msg("extraction worker disabled: completion provider or embedder missing")
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// dependencies holds everything the router and workers need.
type dependencies struct {
	store      store.Store
	index      searchindex.Index
	embedder   emb.Provider
	completion provider.CompletionProvider
	marketCli  *market.Client
	registry   *registry.Registry
	memorySvc  *services.MemoryService
	sessionSvc *services.SessionService
	dispatcher *dispatch.Dispatcher
	health     *health.ServiceHealthChecker
}

func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*dependencies, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, err
	}

	idx, err := factory.NewSearchIndex(ctx, cfg, st, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Search index adapter unavailable")
		return nil, err
	}

	embedder, err := factory.NewEmbeddingProvider(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Embedding provider unavailable")
		return nil, err
	}

	completion, err := factory.NewCompletionProvider(cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Completion provider unavailable")
		return nil, err
	}

	marketCli := market.New(cfg.PoolStatsURL, cfg.PriceFeedURL,
		time.Duration(cfg.MarketCacheTTLSeconds)*time.Second, log)
	reg := registry.New(cfg.ToolRegistryURL,
		time.Duration(cfg.RegistryCacheTTLSeconds)*time.Second, log)

	memorySvc := services.NewMemoryService(st, embedder, idx, log)
	sessionSvc := services.NewSessionService(st)

	executor := tools.NewExecutor(marketCli, memorySvc, cfg.ToolEndpointURL,
		time.Duration(cfg.ToolTimeoutSeconds)*time.Second, log)
	dispatcher := dispatch.New(sessionSvc, reg, executor, completion, st.Audits(), log,
		time.Duration(cfg.ProviderTimeoutSeconds)*time.Second)

	return &dependencies{
		store:      st,
		index:      idx,
		embedder:   embedder,
		completion: completion,
		marketCli:  marketCli,
		registry:   reg,
		memorySvc:  memorySvc,
		sessionSvc: sessionSvc,
		dispatcher: dispatcher,
	}, nil
}

// buildRouter wires HTTP routes to handlers.
func buildRouter(deps *dependencies, cfg *config.Config, log zerolog.Logger) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware(log))

	// Chat
	chat := api.NewChatHandler(deps.dispatcher)
	root.HandleFunc("/api/chat", chat.HandleChat).Methods("POST")

	// Sessions
	session := api.NewSessionHandler(deps.sessionSvc)
	root.HandleFunc("/api/sessions", session.CreateSession).Methods("POST")
	root.HandleFunc("/api/sessions/{sessionId}", session.GetSession).Methods("GET")
	root.HandleFunc("/api/sessions/{sessionId}/messages", session.ListMessages).Methods("GET")
	root.HandleFunc("/api/sessions/{sessionId}/messages", session.ClearSession).Methods("DELETE")

	// Memory
	memory := api.NewMemoryHandler(deps.memorySvc)
	root.HandleFunc("/api/memory", memory.StoreMemory).Methods("POST")
	root.HandleFunc("/api/memory/query", memory.QueryMemory).Methods("POST")

	// Tools
	toolsHandler := api.NewToolsHandler(deps.registry)
	root.HandleFunc("/api/tools", toolsHandler.ListTools).Methods("GET")

	// Market proxies
	marketHandler := api.NewMarketHandler(deps.marketCli)
	root.HandleFunc("/api/market/mining", marketHandler.MiningStats).Methods("GET")
	root.HandleFunc("/api/market/price", marketHandler.TokenPrice).Methods("GET")

	// Health
	healthHandler := api.NewHealthHandler(func() bool {
		if deps.health == nil {
			return true
		}
		return deps.health.IsHealthy()
	})
	root.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")

	return root
}

// startHealthCheckers starts component checkers for every dependency that
// exposes a probe. Optional components (completion, embedder) are monitored
// only when configured.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, deps *dependencies) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	var checkers []health.HealthChecker

	storeChecker := store.NewStoreHealthChecker(deps.store, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	if p, ok := deps.index.(health.HealthPinger); ok {
		c := health.NewPingChecker("search-index", p, log, probeTimeout)
		go c.Start(ctx, interval)
		checkers = append(checkers, c)
	}
	if p, ok := deps.embedder.(health.HealthPinger); ok && deps.embedder != nil {
		c := health.NewPingChecker("embedder", p, log, probeTimeout)
		go c.Start(ctx, interval)
		checkers = append(checkers, c)
	}
	if p, ok := deps.completion.(health.HealthPinger); ok && deps.completion != nil {
		c := health.NewPingChecker("completion", p, log, probeTimeout)
		go c.Start(ctx, interval)
		checkers = append(checkers, c)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// startupHealthTimeout is interval*2 with a 60 second floor, so checkers get
// at least one full probe cycle before startup is aborted.
func startupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := startupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context bound to SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
