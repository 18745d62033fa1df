package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// makeStore must return a clean, isolated store per call.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	// Sessions
	sess, err := s.Sessions().Create(ctx, &model.Session{Label: "test-session"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.SessionID == "" || !sess.Active {
		t.Fatalf("CreateSession: bad session %+v", sess)
	}
	if got, err := s.Sessions().Get(ctx, sess.SessionID); err != nil || got.Label != "test-session" {
		t.Fatalf("GetSession: got=%v err=%v", got, err)
	}
	if _, err := s.Sessions().Get(ctx, uuid.New().String()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetSession missing: want ErrNotFound, got %v", err)
	}

	// Messages: append, ordering, unknown session
	m1, err := s.Messages().Append(ctx, &model.Message{SessionID: sess.SessionID, Role: model.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("Append m1: %v", err)
	}
	m2, err := s.Messages().Append(ctx, &model.Message{
		SessionID: sess.SessionID, Role: model.RoleAssistant, Content: "hi",
		Metadata: map[string]interface{}{"confidence": 0.9},
	})
	if err != nil {
		t.Fatalf("Append m2: %v", err)
	}
	if _, err := s.Messages().Append(ctx, &model.Message{SessionID: uuid.New().String(), Role: model.RoleUser, Content: "x"}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Append unknown session: want ErrNotFound, got %v", err)
	}
	msgs, err := s.Messages().List(ctx, sess.SessionID)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("ListMessages: n=%d err=%v", len(msgs), err)
	}
	if msgs[0].MessageID != m1.MessageID || msgs[1].MessageID != m2.MessageID {
		t.Fatalf("ListMessages: wrong order %v %v", msgs[0].MessageID, msgs[1].MessageID)
	}
	if msgs[0].CreationTime.After(msgs[1].CreationTime) {
		t.Fatalf("ListMessages: timestamps out of order")
	}
	if msgs[1].Metadata["confidence"] != 0.9 {
		t.Fatalf("ListMessages: metadata lost: %v", msgs[1].Metadata)
	}

	// Append bumps the session update time.
	if got, err := s.Sessions().Get(ctx, sess.SessionID); err != nil || got.UpdateTime.Before(sess.UpdateTime) {
		t.Fatalf("session update_time not bumped: %v err=%v", got, err)
	}

	// Clear
	if err := s.Messages().Clear(ctx, sess.SessionID); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if msgs, err := s.Messages().List(ctx, sess.SessionID); err != nil || len(msgs) != 0 {
		t.Fatalf("List after Clear: n=%d err=%v", len(msgs), err)
	}
	if err := s.Messages().Clear(ctx, uuid.New().String()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Clear unknown session: want ErrNotFound, got %v", err)
	}

	checkClearAtomicity(t, ctx, s)

	// Memories: embedding is mandatory
	if _, err := s.Memories().Create(ctx, &model.MemoryEntry{Content: "no vector"}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("Create memory without embedding: want ErrValidation, got %v", err)
	}
	me, err := s.Memories().Create(ctx, &model.MemoryEntry{
		Content: "pool hashrate is 850 KH/s", ContextType: "mining", Importance: 0.8,
		Embedding: []float32{0.1, 0.2, 0.3},
	})
	if err != nil {
		t.Fatalf("Create memory: %v", err)
	}
	got, err := s.Memories().Get(ctx, me.MemoryID)
	if err != nil || len(got.Embedding) != 3 || got.ContextType != "mining" {
		t.Fatalf("Get memory: got=%+v err=%v", got, err)
	}
	if lst, err := s.Memories().List(ctx, "mining", 10); err != nil || len(lst) != 1 {
		t.Fatalf("List memories: n=%d err=%v", len(lst), err)
	}
	if lst, err := s.Memories().List(ctx, "other", 10); err != nil || len(lst) != 0 {
		t.Fatalf("List memories filtered: n=%d err=%v", len(lst), err)
	}

	// CreateWithExtraction enqueues exactly one outbox job
	if _, err := s.Memories().CreateWithExtraction(ctx, &model.MemoryEntry{
		Content: "dao treasury holds 120 XMR", ContextType: "dao",
		Embedding: []float32{0.4, 0.5},
	}); err != nil {
		t.Fatalf("CreateWithExtraction: %v", err)
	}
	jobs, err := s.Outbox().Lease(ctx, 10)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("Lease: n=%d err=%v", len(jobs), err)
	}
	if jobs[0].Op != store.OpExtractKnowledge {
		t.Fatalf("Lease: wrong op %q", jobs[0].Op)
	}
	// Leased jobs are invisible until the lease expires.
	if again, err := s.Outbox().Lease(ctx, 10); err != nil || len(again) != 0 {
		t.Fatalf("Lease while leased: n=%d err=%v", len(again), err)
	}
	if err := s.Outbox().MarkDone(ctx, jobs[0].ID); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	// Audits
	if _, err := s.Audits().Create(ctx, &model.AuditRecord{
		SessionID: sess.SessionID, Input: "what is the hashrate?",
		Tools: []string{"get_mining_stats"}, Status: model.AuditComplete, ElapsedMS: 42,
	}); err != nil {
		t.Fatalf("CreateAudit: %v", err)
	}

	// Memory delete
	if err := s.Memories().Delete(ctx, me.MemoryID); err != nil {
		t.Fatalf("Delete memory: %v", err)
	}
	if _, err := s.Memories().Get(ctx, me.MemoryID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get deleted memory: want ErrNotFound, got %v", err)
	}
}

// checkClearAtomicity races a reader against Clear: every List must observe
// either the full transcript or an empty one, never a partial wipe.
func checkClearAtomicity(t *testing.T, ctx context.Context, s store.Store) {
	t.Helper()

	sess, err := s.Sessions().Create(ctx, &model.Session{Label: "clear-race"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	const transcript = 50
	for i := 0; i < transcript; i++ {
		if _, err := s.Messages().Append(ctx, &model.Message{
			SessionID: sess.SessionID, Role: model.RoleUser, Content: "turn",
		}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	stop := make(chan struct{})
	partial := make(chan int, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			msgs, err := s.Messages().List(ctx, sess.SessionID)
			if err != nil {
				continue
			}
			if n := len(msgs); n != 0 && n != transcript {
				select {
				case partial <- n:
				default:
				}
				return
			}
		}
	}()

	if err := s.Messages().Clear(ctx, sess.SessionID); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	close(stop)
	wg.Wait()
	select {
	case n := <-partial:
		t.Fatalf("reader observed a partial wipe: %d messages", n)
	default:
	}
}
