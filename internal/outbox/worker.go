// Package outbox drains deferred knowledge-extraction jobs. Extraction runs
// out of band from the memory write that produced it, but through the outbox
// its failures stay observable and retryable instead of being swallowed.
package outbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/provider"
	"github.com/xmrt-ecosystem/assistant-server/internal/store"
)

const extractionPrompt = "Extract up to three durable, standalone facts from " +
	"the following note. Return one fact per line with no numbering or " +
	"commentary. Return an empty response when there is nothing worth keeping."

// maxAttempts retires a job after repeated failures so a poison payload
// cannot loop forever.
const maxAttempts = 8

// MemoryWriter persists extracted facts.
type MemoryWriter interface {
	StoreDerived(ctx context.Context, content, contextType string, importance float64, metadata map[string]interface{}) (*model.MemoryEntry, error)
}

// Config controls batch size and polling cadence.
type Config struct {
	BatchSize int
	Interval  time.Duration
}

// Worker leases outbox jobs and applies them.
type Worker struct {
	store      store.Store
	completion provider.CompletionProvider
	memories   MemoryWriter
	cfg        Config
	log        zerolog.Logger
}

func NewWorker(st store.Store, completion provider.CompletionProvider, memories MemoryWriter, cfg Config, log zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Worker{store: st, completion: completion, memories: memories, cfg: cfg, log: log}
}

// Run starts the polling loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("batch", w.cfg.BatchSize).Dur("interval", w.cfg.Interval).Msg("extraction worker starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("extraction worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				// Log and continue; per-job backoff prevents hot-looping.
				w.log.Error().Stack().Err(err).Msg("outbox processing cycle failed")
			}
		}
	}
}

// ProcessOnce leases one batch and handles every job in it.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	jobs, err := w.store.Outbox().Lease(ctx, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := w.handle(ctx, j); err != nil {
			w.log.Warn().Err(err).Int64("job_id", j.ID).Int("attempts", j.AttemptCount).Msg("extraction job failed")
			if j.AttemptCount+1 >= maxAttempts {
				w.log.Error().Stack().Int64("job_id", j.ID).Msg("extraction job retired after max attempts")
				if e := w.store.Outbox().MarkDone(ctx, j.ID); e != nil {
					w.log.Error().Err(e).Int64("job_id", j.ID).Msg("retire failed")
				}
				continue
			}
			if e := w.store.Outbox().MarkFailed(ctx, j.ID); e != nil {
				w.log.Error().Err(e).Int64("job_id", j.ID).Msg("markFailed failed")
			}
			continue
		}
		if e := w.store.Outbox().MarkDone(ctx, j.ID); e != nil {
			w.log.Error().Err(e).Int64("job_id", j.ID).Msg("markDone failed")
		}
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, j *model.OutboxJob) error {
	switch j.Op {
	case store.OpExtractKnowledge:
		return w.extract(ctx, j)
	default:
		return fmt.Errorf("unknown outbox op %q", j.Op)
	}
}

func (w *Worker) extract(ctx context.Context, j *model.OutboxJob) error {
	if w.completion == nil {
		return fmt.Errorf("extraction: %w", model.ErrNotConfigured)
	}
	memoryID, _ := j.Payload["memoryId"].(string)
	if memoryID == "" {
		return fmt.Errorf("extraction payload without memoryId")
	}
	entry, err := w.store.Memories().Get(ctx, memoryID)
	if err != nil {
		return err
	}

	resp, err := w.completion.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: extractionPrompt},
		{Role: provider.RoleUser, Content: entry.Content},
	}, nil)
	if err != nil {
		return fmt.Errorf("extraction completion: %w", err)
	}

	for _, line := range strings.Split(resp.Content, "\n") {
		fact := strings.TrimSpace(line)
		if fact == "" {
			continue
		}
		if _, err := w.memories.StoreDerived(ctx, fact, "knowledge", entry.Importance, map[string]interface{}{
			"sourceMemoryId": memoryID,
		}); err != nil {
			return err
		}
	}
	return nil
}
