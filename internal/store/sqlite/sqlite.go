// Package sqlite provides a file-backed store for local single-process
// deployments and for tests. It mirrors the postgres driver's semantics.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/store"
)

const ddl = `
PRAGMA foreign_keys = ON;
CREATE TABLE IF NOT EXISTS sessions (
    session_id    TEXT PRIMARY KEY,
    label         TEXT NOT NULL DEFAULT '',
    is_active     INTEGER NOT NULL DEFAULT 1,
    creation_time TIMESTAMP NOT NULL,
    update_time   TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id    TEXT NOT NULL UNIQUE,
    session_id    TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    role          TEXT NOT NULL,
    content       TEXT NOT NULL,
    metadata      TEXT,
    creation_time TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, creation_time, seq);
CREATE TABLE IF NOT EXISTS memory_entries (
    memory_id        TEXT PRIMARY KEY,
    content          TEXT NOT NULL,
    context_type     TEXT NOT NULL DEFAULT 'general',
    importance_score REAL NOT NULL DEFAULT 0.5,
    embedding        TEXT NOT NULL,
    session_id       TEXT,
    metadata         TEXT,
    creation_time    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_context_type ON memory_entries (context_type, creation_time);
CREATE TABLE IF NOT EXISTS audit_records (
    audit_id      TEXT PRIMARY KEY,
    session_id    TEXT,
    input         TEXT NOT NULL,
    tools         TEXT,
    status        TEXT NOT NULL,
    error         TEXT,
    elapsed_ms    INTEGER NOT NULL DEFAULT 0,
    creation_time TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS outbox (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    op              TEXT NOT NULL,
    payload         TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    attempt_count   INTEGER NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMP NOT NULL,
    creation_time   TIMESTAMP NOT NULL,
    update_time     TIMESTAMP NOT NULL
);
`

// Open opens (or creates) the SQLite database at path and applies the schema.
// Use ":memory:" for tests.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New opens path and returns a store.Store backed by SQLite.
func New(path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing connection (used by the factory and tests).
func NewWithDB(db *sql.DB) store.Store { return &liteStore{db: db} }

type liteStore struct{ db *sql.DB }

func (s *liteStore) Sessions() store.Sessions { return &sessions{db: s.db} }
func (s *liteStore) Messages() store.Messages { return &messages{db: s.db} }
func (s *liteStore) Memories() store.Memories { return &memories{db: s.db} }
func (s *liteStore) Audits() store.Audits     { return &audits{db: s.db} }
func (s *liteStore) Outbox() store.Outbox     { return &outbox{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *liteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Sessions ---
type sessions struct{ db *sql.DB }

func (s *sessions) Create(ctx context.Context, in *model.Session) (*model.Session, error) {
	id := in.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO sessions (session_id, label, is_active, creation_time, update_time)
        VALUES (?,?,1,?,?)
    `, id, in.Label, now, now)
	if err != nil {
		return nil, err
	}
	return &model.Session{SessionID: id, Label: in.Label, Active: true, CreationTime: now, UpdateTime: now}, nil
}

func (s *sessions) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	var out model.Session
	row := s.db.QueryRowContext(ctx, `
        SELECT session_id, label, is_active, creation_time, update_time
        FROM sessions WHERE session_id=?
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
        UPDATE sessions SET is_active=?, update_time=? WHERE session_id=?
    `, active, time.Now().UTC(), sessionID)
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
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id=?)`, in.SessionID).Scan(&exists); err != nil {
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
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO messages (message_id, session_id, role, content, metadata, creation_time)
        VALUES (?,?,?,?,?,?)
    `, id, in.SessionID, in.Role, in.Content, meta, now); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET update_time=? WHERE session_id=?`, now, in.SessionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := *in
	out.MessageID = id
	out.CreationTime = now
	return &out, nil
}

func (m *messages) List(ctx context.Context, sessionID string) ([]*model.Message, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT message_id, session_id, role, content, metadata, creation_time
        FROM messages WHERE session_id=?
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
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id=?)`, sessionID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id=?`, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET update_time=? WHERE session_id=?`, time.Now().UTC(), sessionID); err != nil {
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
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO outbox (op, payload, next_attempt_at, creation_time, update_time)
        VALUES (?,?,?,?,?)
    `, store.OpExtractKnowledge, payload, now, now, now); err != nil {
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
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO memory_entries (memory_id, content, context_type, importance_score, embedding, session_id, metadata, creation_time)
        VALUES (?,?,?,?,?,?,?,?)
    `, id, in.Content, in.ContextType, in.Importance, emb, in.SessionID, meta, now); err != nil {
		return nil, err
	}
	out := *in
	out.MemoryID = id
	out.CreationTime = now
	return &out, nil
}

func (m *memories) Get(ctx context.Context, memoryID string) (*model.MemoryEntry, error) {
	row := m.db.QueryRowContext(ctx, `
        SELECT memory_id, content, context_type, importance_score, embedding, session_id, metadata, creation_time
        FROM memory_entries WHERE memory_id=?
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
		q += ` WHERE context_type=?`
		args = append(args, contextType)
	}
	q += ` ORDER BY creation_time DESC`
	if limit > 0 {
		q += ` LIMIT ?`
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
	res, err := m.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE memory_id=?`, memoryID)
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
	now := time.Now().UTC()
	if _, err := a.db.ExecContext(ctx, `
        INSERT INTO audit_records (audit_id, session_id, input, tools, status, error, elapsed_ms, creation_time)
        VALUES (?,?,?,?,?,?,?,?)
    `, id, sessionID, in.Input, tools, in.Status, in.Error, in.ElapsedMS, now); err != nil {
		return nil, err
	}
	out := *in
	out.AuditID = id
	out.CreationTime = now
	return &out, nil
}

// --- Outbox ---
type outbox struct{ db *sql.DB }

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

	now := time.Now().UTC()
	rows, err := tx.QueryContext(ctx, `
        SELECT id, op, payload, attempt_count
        FROM outbox
        WHERE status='pending' AND next_attempt_at <= ?
        ORDER BY id ASC
        LIMIT ?
    `, now, batch)
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

	lease := now.Add(leasePeriod)
	for _, j := range jobs {
		if _, err := tx.ExecContext(ctx, `
            UPDATE outbox SET next_attempt_at=?, update_time=? WHERE id=?
        `, lease, now, j.ID); err != nil {
			return nil, err
		}
	}
	return jobs, tx.Commit()
}

func (o *outbox) MarkDone(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `UPDATE outbox SET status='done', update_time=? WHERE id=?`, time.Now().UTC(), id)
	return err
}

func (o *outbox) MarkFailed(ctx context.Context, id int64) error {
	var attempts int
	if err := o.db.QueryRowContext(ctx, `SELECT attempt_count FROM outbox WHERE id=?`, id).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		return err
	}
	backoff := time.Duration(math.Min(math.Pow(2, float64(attempts+1)), 300)) * time.Second
	now := time.Now().UTC()
	_, err := o.db.ExecContext(ctx, `
        UPDATE outbox SET attempt_count=attempt_count+1, next_attempt_at=?, update_time=? WHERE id=?
    `, now.Add(backoff), now, id)
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
