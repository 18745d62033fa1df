package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Sessions() store.Sessions { return &sessions{db: s.db} }
func (s *pgStore) Messages() store.Messages { return &messages{db: s.db} }
func (s *pgStore) Memories() store.Memories { return &memories{db: s.db} }
func (s *pgStore) Audits() store.Audits     { return &audits{db: s.db} }
func (s *pgStore) Outbox() store.Outbox     { return &outbox{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id    UUID PRIMARY KEY,
    label         TEXT NOT NULL DEFAULT '',
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now(),
    update_time   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS messages (
    seq           BIGSERIAL PRIMARY KEY,
    message_id    UUID NOT NULL UNIQUE,
    session_id    UUID NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    role          TEXT NOT NULL,
    content       TEXT NOT NULL,
    metadata      JSONB,
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, creation_time, seq);
CREATE TABLE IF NOT EXISTS memory_entries (
    memory_id        UUID PRIMARY KEY,
    content          TEXT NOT NULL,
    context_type     TEXT NOT NULL DEFAULT 'general',
    importance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    embedding        JSONB NOT NULL,
    session_id       UUID,
    metadata         JSONB,
    creation_time    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_memory_context_type ON memory_entries (context_type, creation_time);
CREATE TABLE IF NOT EXISTS audit_records (
    audit_id      UUID PRIMARY KEY,
    session_id    UUID,
    input         TEXT NOT NULL,
    tools         JSONB,
    status        TEXT NOT NULL,
    error         TEXT,
    elapsed_ms    BIGINT NOT NULL DEFAULT 0,
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS outbox (
    id              BIGSERIAL PRIMARY KEY,
    op              TEXT NOT NULL,
    payload         JSONB NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    attempt_count   INT NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    creation_time   TIMESTAMPTZ NOT NULL DEFAULT now(),
    update_time     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Bootstrap creates the schema when missing and verifies connectivity.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, ddl)
	return err
}

// --- Sessions ---
type sessions struct{ db *sql.DB }

func (s *sessions) Create(ctx context.Context, in *model.Session) (*model.Session, error) {
	id := in.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	var created, updated time.Time
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO sessions (session_id, label, is_active)
        VALUES ($1,$2,TRUE)
        RETURNING creation_time, update_time
    `, id, in.Label)
	if err := row.Scan(&created, &updated); err != nil {
		return nil, err
	}
	return &model.Session{SessionID: id, Label: in.Label, Active: true, CreationTime: created, UpdateTime: updated}, nil
}

func (s *sessions) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	var out model.Session
	row := s.db.QueryRowContext(ctx, `
        SELECT session_id, label, is_active, creation_time, update_time
        FROM sessions WHERE session_id=$1
    `, sessionID)
	if err := row.Scan(&out.SessionID, &out.Label, &out.Active, &out.CreationTime, &out.UpdateTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (s *sessions) SetActive(ctx context.Context, sessionID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE sessions SET is_active=$2, update_time=now() WHERE session_id=$1
    `, sessionID, active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Messages ---
type messages struct{ db *sql.DB }

func (m *messages) Append(ctx context.Context, in *model.Message) (*model.Message, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id=$1)`, in.SessionID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.ErrNotFound
	}

	id := in.MessageID
	if id == "" {
		id = uuid.New().String()
	}
	meta, err := marshalJSON(in.Metadata)
	if err != nil {
		return nil, err
	}
	var created time.Time
	row := tx.QueryRowContext(ctx, `
        INSERT INTO messages (message_id, session_id, role, content, metadata)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING creation_time
    `, id, in.SessionID, in.Role, in.Content, meta)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET update_time=now() WHERE session_id=$1`, in.SessionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := *in
	out.MessageID = id
	out.CreationTime = created
	return &out, nil
}

func (m *messages) List(ctx context.Context, sessionID string) ([]*model.Message, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT message_id, session_id, role, content, metadata, creation_time
        FROM messages WHERE session_id=$1
        ORDER BY creation_time ASC, seq ASC
    `, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := []*model.Message{}
	for rows.Next() {
		var msg model.Message
		var meta []byte
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &msg.Role, &msg.Content, &meta, &msg.CreationTime); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(meta, &msg.Metadata); err != nil {
			return nil, err
		}
		res = append(res, &msg)
	}
	return res, rows.Err()
}

func (m *messages) Clear(ctx context.Context, sessionID string) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id=$1)`, sessionID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id=$1`, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET update_time=now() WHERE session_id=$1`, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Memories ---
type memories struct{ db *sql.DB }

func (m *memories) Create(ctx context.Context, in *model.MemoryEntry) (*model.MemoryEntry, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	out, err := insertMemory(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

func (m *memories) CreateWithExtraction(ctx context.Context, in *model.MemoryEntry) (*model.MemoryEntry, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	out, err := insertMemory(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	payload, err := marshalJSON(map[string]interface{}{
		"memoryId":    out.MemoryID,
		"contextType": out.ContextType,
	})
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO outbox (op, payload) VALUES ($1,$2)
    `, store.OpExtractKnowledge, payload); err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

func insertMemory(ctx context.Context, tx *sql.Tx, in *model.MemoryEntry) (*model.MemoryEntry, error) {
	if len(in.Embedding) == 0 {
		return nil, fmt.Errorf("memory entry without embedding: %w", model.ErrValidation)
	}
	id := in.MemoryID
	if id == "" {
		id = uuid.New().String()
	}
	emb, err := json.Marshal(in.Embedding)
	if err != nil {
		return nil, err
	}
	meta, err := marshalJSON(in.Metadata)
	if err != nil {
		return nil, err
	}
	var created time.Time
	row := tx.QueryRowContext(ctx, `
        INSERT INTO memory_entries (memory_id, content, context_type, importance_score, embedding, session_id, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING creation_time
    `, id, in.Content, in.ContextType, in.Importance, emb, in.SessionID, meta)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *in
	out.MemoryID = id
	out.CreationTime = created
	return &out, nil
}

func (m *memories) Get(ctx context.Context, memoryID string) (*model.MemoryEntry, error) {
	row := m.db.QueryRowContext(ctx, `
        SELECT memory_id, content, context_type, importance_score, embedding, session_id, metadata, creation_time
        FROM memory_entries WHERE memory_id=$1
    `, memoryID)
	out, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return out, err
}

func (m *memories) List(ctx context.Context, contextType string, limit int) ([]*model.MemoryEntry, error) {
	q := `
        SELECT memory_id, content, context_type, importance_score, embedding, session_id, metadata, creation_time
        FROM memory_entries`
	args := []interface{}{}
	if contextType != "" {
		q += fmt.Sprintf(` WHERE context_type=$%d`, len(args)+1)
		args = append(args, contextType)
	}
	q += ` ORDER BY creation_time DESC`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}
	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := []*model.MemoryEntry{}
	for rows.Next() {
		e, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (m *memories) Delete(ctx context.Context, memoryID string) error {
	res, err := m.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE memory_id=$1`, memoryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

type rowScanner interface{ Scan(dest ...interface{}) error }

func scanMemory(row rowScanner) (*model.MemoryEntry, error) {
	var out model.MemoryEntry
	var emb, meta []byte
	if err := row.Scan(&out.MemoryID, &out.Content, &out.ContextType, &out.Importance, &emb, &out.SessionID, &meta, &out.CreationTime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(emb, &out.Embedding); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(meta, &out.Metadata); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Audits ---
type audits struct{ db *sql.DB }

func (a *audits) Create(ctx context.Context, in *model.AuditRecord) (*model.AuditRecord, error) {
	id := in.AuditID
	if id == "" {
		id = uuid.New().String()
	}
	tools, err := marshalJSON(in.Tools)
	if err != nil {
		return nil, err
	}
	var sessionID interface{}
	if in.SessionID != "" {
		sessionID = in.SessionID
	}
	var created time.Time
	row := a.db.QueryRowContext(ctx, `
        INSERT INTO audit_records (audit_id, session_id, input, tools, status, error, elapsed_ms)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING creation_time
    `, id, sessionID, in.Input, tools, in.Status, in.Error, in.ElapsedMS)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *in
	out.AuditID = id
	out.CreationTime = created
	return &out, nil
}

// --- Outbox ---
type outbox struct{ db *sql.DB }

// leasePeriod hides a leased job from other workers while it is processed.
const leasePeriod = time.Minute

func (o *outbox) Lease(ctx context.Context, batch int) ([]*model.OutboxJob, error) {
	if batch <= 0 {
		batch = 50
	}
	tx, err := o.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
        SELECT id, op, payload, attempt_count
        FROM outbox
        WHERE status='pending' AND next_attempt_at <= now()
        ORDER BY id ASC
        FOR UPDATE SKIP LOCKED
        LIMIT $1
    `, batch)
	if err != nil {
		return nil, err
	}
	var jobs []*model.OutboxJob
	for rows.Next() {
		var j model.OutboxJob
		var payload []byte
		if err := rows.Scan(&j.ID, &j.Op, &payload, &j.AttemptCount); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if err := unmarshalJSON(payload, &j.Payload); err != nil {
			_ = rows.Close()
			return nil, err
		}
		jobs = append(jobs, &j)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, j := range jobs {
		if _, err := tx.ExecContext(ctx, `
            UPDATE outbox SET next_attempt_at = now() + $2::interval, update_time = now() WHERE id=$1
        `, j.ID, fmt.Sprintf("%d seconds", int(leasePeriod.Seconds()))); err != nil {
			return nil, err
		}
	}
	return jobs, tx.Commit()
}

func (o *outbox) MarkDone(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `UPDATE outbox SET status='done', update_time=now() WHERE id=$1`, id)
	return err
}

func (o *outbox) MarkFailed(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `
        UPDATE outbox
        SET attempt_count = attempt_count + 1,
            next_attempt_at = now() + make_interval(secs => LEAST(POWER(2, attempt_count+1), 300)),
            update_time = now()
        WHERE id=$1
    `, id)
	return err
}

// --- helpers ---

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(b []byte, dst interface{}) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
