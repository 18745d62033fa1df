package store

import (
	"context"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Sessions() Sessions
	Messages() Messages
	Memories() Memories
	Audits() Audits
	Outbox() Outbox
}

type Sessions interface {
	Create(ctx context.Context, s *model.Session) (*model.Session, error)
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	SetActive(ctx context.Context, sessionID string, active bool) error
}

type Messages interface {
	// Append inserts a message and bumps the session's update time in one
	// transaction. Returns model.ErrNotFound for an unknown session.
	Append(ctx context.Context, m *model.Message) (*model.Message, error)
	// List returns messages in ascending creation order; empty slice when none.
	List(ctx context.Context, sessionID string) ([]*model.Message, error)
	// Clear removes all messages of a session atomically.
	Clear(ctx context.Context, sessionID string) error
}

type Memories interface {
	Create(ctx context.Context, m *model.MemoryEntry) (*model.MemoryEntry, error)
	// CreateWithExtraction inserts the entry and an extract_knowledge outbox
	// job in the same transaction, so extraction is never silently lost.
	CreateWithExtraction(ctx context.Context, m *model.MemoryEntry) (*model.MemoryEntry, error)
	Get(ctx context.Context, memoryID string) (*model.MemoryEntry, error)
	// List returns entries, newest first, optionally filtered by context type.
	// A limit <= 0 returns the entire corpus.
	List(ctx context.Context, contextType string, limit int) ([]*model.MemoryEntry, error)
	Delete(ctx context.Context, memoryID string) error
}

type Audits interface {
	Create(ctx context.Context, a *model.AuditRecord) (*model.AuditRecord, error)
}

// Outbox leases due jobs for the extraction worker. A leased job becomes
// invisible for the lease period; MarkDone retires it, MarkFailed re-schedules
// it with exponential backoff.
type Outbox interface {
	Lease(ctx context.Context, batch int) ([]*model.OutboxJob, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
}

// Outbox operation names.
const (
	OpExtractKnowledge = "extract_knowledge"
)
