package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/config"
	storepkg "github.com/xmrt-ecosystem/assistant-server/internal/store"
	storepg "github.com/xmrt-ecosystem/assistant-server/internal/store/postgres"
	storelite "github.com/xmrt-ecosystem/assistant-server/internal/store/sqlite"
)

// NewStore returns the configured store.Store. Postgres bootstrap runs
// asynchronously so startup is not gated on schema application; SQLite
// applies its schema on open.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := storepg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		go func() {
			bootstrapCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := storepg.Bootstrap(bootstrapCtx, db); err != nil {
				log.Warn().Err(err).Str("driver", cfg.DBDriver).Msg("store bootstrap failed")
			} else {
				log.Debug().Str("driver", cfg.DBDriver).Msg("store bootstrap completed")
			}
		}()
		return storepg.NewWithDB(db), nil
	case "sqlite":
		st, err := storelite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return st, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}
