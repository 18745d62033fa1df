package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/provider"
)

// --- Fakes ---

type appended struct {
	role     string
	content  string
	metadata map[string]interface{}
}

type fakeSessions struct {
	msgs      []appended
	appendErr error
}

func (f *fakeSessions) AppendMessage(ctx context.Context, sessionID, role, content string, metadata map[string]interface{}) (*model.Message, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.msgs = append(f.msgs, appended{role: role, content: content, metadata: metadata})
	return &model.Message{SessionID: sessionID, Role: role, Content: content}, nil
}

type fakeTools struct{ descriptors []model.ToolDescriptor }

func (f *fakeTools) List(ctx context.Context) []model.ToolDescriptor { return f.descriptors }

type fakeExecutor struct {
	results map[string]map[string]interface{}
	errs    map[string]error
	delays  map[string]time.Duration
}

func (f *fakeExecutor) Execute(ctx context.Context, name, rawArgs string) (map[string]interface{}, error) {
	if d, ok := f.delays[name]; ok {
		time.Sleep(d)
	}
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	if out, ok := f.results[name]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("unknown tool %q", name)
}

type fakeAudits struct {
	records   []*model.AuditRecord
	createErr error
}

func (f *fakeAudits) Create(ctx context.Context, a *model.AuditRecord) (*model.AuditRecord, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.records = append(f.records, a)
	return a, nil
}

func miningDescriptor() []model.ToolDescriptor {
	return []model.ToolDescriptor{{
		Name:        "get_mining_stats",
		Description: "pool stats",
		Parameters:  map[string]interface{}{"type": "object"},
	}}
}

func newTestDispatcher(stub provider.CompletionProvider, exec ToolExecutor, tools ToolSource) (*Dispatcher, *fakeSessions, *fakeAudits) {
	sessions := &fakeSessions{}
	audits := &fakeAudits{}
	if tools == nil {
		tools = &fakeTools{descriptors: miningDescriptor()}
	}
	d := New(sessions, tools, exec, stub, audits, zerolog.Nop(), time.Second)
	return d, sessions, audits
}

// --- Tests ---

func TestDispatchDirectAnswer(t *testing.T) {
	stub := &provider.Stub{Responses: []provider.Response{{Content: "XMRT is the DAO's token."}}}
	d, sessions, audits := newTestDispatcher(stub, &fakeExecutor{}, nil)

	res, err := d.Dispatch(context.Background(), "s1", "What is XMRT?")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.State != StateComplete {
		t.Fatalf("state = %s, want %s", res.State, StateComplete)
	}
	if res.Reply != "XMRT is the DAO's token." {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
	if len(res.ToolResults) != 0 {
		t.Fatalf("direct answer should carry no tool results, got %d", len(res.ToolResults))
	}

	// User turn then assistant turn, in that order.
	if len(sessions.msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(sessions.msgs))
	}
	if sessions.msgs[0].role != model.RoleUser || sessions.msgs[1].role != model.RoleAssistant {
		t.Fatalf("unexpected roles: %s, %s", sessions.msgs[0].role, sessions.msgs[1].role)
	}
	if sessions.msgs[1].metadata["toolExecutionId"] == "" {
		t.Fatal("assistant message should reference the audit id")
	}

	if len(audits.records) != 1 || audits.records[0].Status != model.AuditComplete {
		t.Fatalf("expected one COMPLETE audit, got %+v", audits.records)
	}
	// Only one provider call for a direct answer.
	if len(stub.Calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(stub.Calls))
	}
	if len(stub.ToolsSeen[0]) == 0 {
		t.Fatal("decision call should offer tools")
	}
}

func TestDispatchToolRound(t *testing.T) {
	stub := &provider.Stub{Responses: []provider.Response{
		{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "get_mining_stats", Arguments: "{}"}}},
		{Content: "The pool is currently at 850 KH/s."},
	}}
	exec := &fakeExecutor{results: map[string]map[string]interface{}{
		"get_mining_stats": {"pool_hashrate": "850 KH/s", "miners": float64(412)},
	}}
	d, sessions, audits := newTestDispatcher(stub, exec, nil)

	res, err := d.Dispatch(context.Background(), "s1", "What's today's pool hashrate?")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.State != StateComplete {
		t.Fatalf("state = %s, want %s", res.State, StateComplete)
	}
	if !strings.Contains(res.Reply, "850 KH/s") {
		t.Fatalf("reply should surface the tool data, got %q", res.Reply)
	}
	if len(res.ToolResults) != 1 || res.ToolResults[0].Name != "get_mining_stats" {
		t.Fatalf("unexpected tool results: %+v", res.ToolResults)
	}
	if res.ToolResults[0].Err != "" {
		t.Fatalf("tool should have succeeded, got error %q", res.ToolResults[0].Err)
	}

	// Synthesis call carries the tool output and offers no tools back.
	if len(stub.Calls) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(stub.Calls))
	}
	synthesis := stub.Calls[1]
	var sawToolMsg bool
	for _, m := range synthesis {
		if m.Role == provider.RoleTool {
			sawToolMsg = true
			if m.ToolCallID != "c1" {
				t.Fatalf("tool message should reference call id, got %q", m.ToolCallID)
			}
			if !strings.Contains(m.Content, "850 KH/s") {
				t.Fatalf("tool message should carry the result, got %q", m.Content)
			}
		}
	}
	if !sawToolMsg {
		t.Fatal("synthesis call should include a tool-role message")
	}
	if len(stub.ToolsSeen[1]) != 0 {
		t.Fatal("synthesis call must not offer tools")
	}

	meta := sessions.msgs[1].metadata
	if tools, _ := meta["tools"].([]string); len(tools) != 1 || tools[0] != "get_mining_stats" {
		t.Fatalf("assistant metadata tools = %v", meta["tools"])
	}
	if meta["hadErrors"] != false {
		t.Fatalf("hadErrors = %v, want false", meta["hadErrors"])
	}

	if len(audits.records) != 1 {
		t.Fatalf("audits = %d, want 1", len(audits.records))
	}
	if got := audits.records[0].Tools; len(got) != 1 || got[0] != "get_mining_stats" {
		t.Fatalf("audit tools = %v", got)
	}
}

func TestDispatchPartialToolFailure(t *testing.T) {
	stub := &provider.Stub{Responses: []provider.Response{
		{ToolCalls: []provider.ToolCall{
			{ID: "c1", Name: "get_mining_stats", Arguments: "{}"},
			{ID: "c2", Name: "get_token_price", Arguments: "{}"},
			{ID: "c3", Name: "query_memory", Arguments: `{"query":"treasury"}`},
		}},
		{Content: "Here is what I could find."},
	}}
	exec := &fakeExecutor{
		results: map[string]map[string]interface{}{
			"get_mining_stats": {"pool_hashrate": "850 KH/s"},
			"query_memory":     {"memories": []interface{}{}},
		},
		errs: map[string]error{
			"get_token_price": errors.New("price feed timeout"),
		},
	}
	d, sessions, _ := newTestDispatcher(stub, exec, nil)

	res, err := d.Dispatch(context.Background(), "s1", "Full status please")
	if err != nil {
		t.Fatalf("one failing tool must not fail the cycle: %v", err)
	}
	if len(res.ToolResults) != 3 {
		t.Fatalf("tool results = %d, want 3", len(res.ToolResults))
	}
	// Results keep the provider's request order regardless of completion order.
	wantOrder := []string{"get_mining_stats", "get_token_price", "query_memory"}
	for i, name := range wantOrder {
		if res.ToolResults[i].Name != name {
			t.Fatalf("result[%d] = %s, want %s", i, res.ToolResults[i].Name, name)
		}
	}
	if res.ToolResults[1].Err == "" {
		t.Fatal("failing tool should carry its error")
	}
	if res.ToolResults[0].Err != "" || res.ToolResults[2].Err != "" {
		t.Fatal("succeeding tools should not carry errors")
	}
	if sessions.msgs[1].metadata["hadErrors"] != true {
		t.Fatal("assistant metadata should flag the partial failure")
	}
}

func TestDispatchPreservesRequestOrderUnderConcurrency(t *testing.T) {
	stub := &provider.Stub{Responses: []provider.Response{
		{ToolCalls: []provider.ToolCall{
			{ID: "c1", Name: "slow", Arguments: "{}"},
			{ID: "c2", Name: "fast", Arguments: "{}"},
		}},
		{Content: "done"},
	}}
	exec := &fakeExecutor{
		results: map[string]map[string]interface{}{
			"slow": {"n": float64(1)},
			"fast": {"n": float64(2)},
		},
		delays: map[string]time.Duration{"slow": 50 * time.Millisecond},
	}
	d, _, _ := newTestDispatcher(stub, exec, nil)

	res, err := d.Dispatch(context.Background(), "s1", "race check")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.ToolResults[0].Name != "slow" || res.ToolResults[1].Name != "fast" {
		t.Fatalf("order not preserved: %+v", res.ToolResults)
	}
}

func TestDispatchProviderFailure(t *testing.T) {
	stub := &provider.Stub{Err: errors.New("upstream 500")}
	d, sessions, audits := newTestDispatcher(stub, &fakeExecutor{}, nil)

	_, err := d.Dispatch(context.Background(), "s1", "hello")
	if !errors.Is(err, model.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}

	// The user's turn must survive the provider failure.
	if len(sessions.msgs) != 1 || sessions.msgs[0].role != model.RoleUser {
		t.Fatalf("user message not persisted: %+v", sessions.msgs)
	}

	if len(audits.records) != 1 || audits.records[0].Status != model.AuditFailed {
		t.Fatalf("expected one FAILED audit, got %+v", audits.records)
	}
	if audits.records[0].Error == "" {
		t.Fatal("failed audit should carry the error text")
	}
}

func TestDispatchEmptyUtterance(t *testing.T) {
	stub := &provider.Stub{}
	d, sessions, audits := newTestDispatcher(stub, &fakeExecutor{}, nil)

	_, err := d.Dispatch(context.Background(), "s1", "   ")
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(sessions.msgs) != 0 {
		t.Fatal("nothing should be persisted for an empty utterance")
	}
	if len(audits.records) != 1 || audits.records[0].Status != model.AuditFailed {
		t.Fatal("even a rejected utterance gets an audit record")
	}
}

func TestDispatchWithoutCompletionProvider(t *testing.T) {
	d, _, audits := newTestDispatcher(nil, &fakeExecutor{}, nil)

	_, err := d.Dispatch(context.Background(), "s1", "hello")
	if !errors.Is(err, model.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if len(audits.records) != 1 {
		t.Fatal("audit record expected")
	}
}

func TestDispatchSynthesisFailure(t *testing.T) {
	stub := &provider.Stub{Responses: []provider.Response{
		{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "get_mining_stats", Arguments: "{}"}}},
		{Content: ""},
	}}
	exec := &fakeExecutor{results: map[string]map[string]interface{}{
		"get_mining_stats": {"pool_hashrate": "850 KH/s"},
	}}
	d, _, _ := newTestDispatcher(stub, exec, nil)

	res, err := d.Dispatch(context.Background(), "s1", "hashrate?")
	if !errors.Is(err, model.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
	// Tool results are still reported so the caller can see what ran.
	if len(res.ToolResults) != 1 {
		t.Fatalf("tool results = %d, want 1", len(res.ToolResults))
	}
}

func TestDispatchAuditWriteFailureDoesNotMaskResult(t *testing.T) {
	stub := &provider.Stub{Responses: []provider.Response{{Content: "fine"}}}
	sessions := &fakeSessions{}
	audits := &fakeAudits{createErr: errors.New("audit table gone")}
	d := New(sessions, &fakeTools{descriptors: miningDescriptor()}, &fakeExecutor{}, stub, audits, zerolog.Nop(), time.Second)

	res, err := d.Dispatch(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("audit failure must not fail the dispatch: %v", err)
	}
	if res.Reply != "fine" {
		t.Fatalf("unexpected reply %q", res.Reply)
	}
}
