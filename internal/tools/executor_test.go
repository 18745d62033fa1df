package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/registry"
)

// --- Fakes ---

type fakeMarket struct {
	pool     map[string]interface{}
	price    map[string]interface{}
	poolErr  error
	priceErr error
}

func (f *fakeMarket) PoolStats(ctx context.Context) (map[string]interface{}, error) {
	return f.pool, f.poolErr
}
func (f *fakeMarket) TokenPrice(ctx context.Context) (map[string]interface{}, error) {
	return f.price, f.priceErr
}

type fakeMemory struct {
	entries []*model.MemoryEntry
	err     error

	gotQuery string
	gotLimit int
}

func (f *fakeMemory) QueryMemory(ctx context.Context, query string, limit int, threshold float64, contextType string) ([]*model.MemoryEntry, error) {
	f.gotQuery = query
	f.gotLimit = limit
	return f.entries, f.err
}

// --- DecodeArgs ---

func TestDecodeArgsDefaults(t *testing.T) {
	a, err := DecodeArgs(registry.ToolTokenPrice, "")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.(TokenPriceArgs).Currency != "usd" {
		t.Fatalf("currency default = %q, want usd", a.(TokenPriceArgs).Currency)
	}

	a, err = DecodeArgs(registry.ToolQueryMemory, `{"query":"treasury"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	qa := a.(QueryMemoryArgs)
	if qa.Limit != 5 {
		t.Fatalf("limit default = %d, want 5", qa.Limit)
	}

	a, err = DecodeArgs(registry.ToolExecuteCode, `{"code":"print(1)"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.(ExecuteCodeArgs).Language != "python" {
		t.Fatalf("language default = %q, want python", a.(ExecuteCodeArgs).Language)
	}
}

func TestDecodeArgsValidation(t *testing.T) {
	cases := []struct {
		name string
		tool string
		raw  string
	}{
		{"malformed json", registry.ToolQueryMemory, `{"query":`},
		{"empty query", registry.ToolQueryMemory, `{"query":"  "}`},
		{"missing code", registry.ToolExecuteCode, `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeArgs(tc.tool, tc.raw); !errors.Is(err, model.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestDecodeArgsUnknownToolIsRemote(t *testing.T) {
	a, err := DecodeArgs("get_dao_proposals", `{"status":"open"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ra, ok := a.(RemoteArgs)
	if !ok {
		t.Fatalf("unknown tool should decode to RemoteArgs, got %T", a)
	}
	if ra["status"] != "open" {
		t.Fatalf("remote args = %v", ra)
	}
}

// --- Execute ---

func TestExecuteBuiltins(t *testing.T) {
	market := &fakeMarket{
		pool:  map[string]interface{}{"pool_hashrate": "850 KH/s"},
		price: map[string]interface{}{"monero": map[string]interface{}{"usd": 161.2}},
	}
	memory := &fakeMemory{entries: []*model.MemoryEntry{
		{Content: "treasury holds 1200 XMR", ContextType: "knowledge", Similarity: 0.91},
	}}
	e := NewExecutor(market, memory, "", time.Second, zerolog.Nop())

	out, err := e.Execute(context.Background(), registry.ToolMiningStats, "{}")
	if err != nil {
		t.Fatalf("mining stats: %v", err)
	}
	if out["pool_hashrate"] != "850 KH/s" {
		t.Fatalf("unexpected pool stats: %v", out)
	}

	out, err = e.Execute(context.Background(), registry.ToolTokenPrice, `{"currency":"eur"}`)
	if err != nil {
		t.Fatalf("token price: %v", err)
	}
	if out["currency"] != "eur" {
		t.Fatalf("currency not threaded through: %v", out)
	}

	out, err = e.Execute(context.Background(), registry.ToolQueryMemory, `{"query":"treasury","limit":3}`)
	if err != nil {
		t.Fatalf("query memory: %v", err)
	}
	if memory.gotQuery != "treasury" || memory.gotLimit != 3 {
		t.Fatalf("memory called with %q/%d", memory.gotQuery, memory.gotLimit)
	}
	if out["count"] != 1 {
		t.Fatalf("count = %v, want 1", out["count"])
	}
}

func TestExecuteRemoteTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/get_dao_proposals") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"proposals":[],"count":0}`))
	}))
	defer srv.Close()

	e := NewExecutor(&fakeMarket{}, &fakeMemory{}, srv.URL, time.Second, zerolog.Nop())
	out, err := e.Execute(context.Background(), "get_dao_proposals", `{"status":"open"}`)
	if err != nil {
		t.Fatalf("remote tool: %v", err)
	}
	if out["count"] != float64(0) {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestExecuteRemoteNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewExecutor(&fakeMarket{}, &fakeMemory{}, srv.URL, time.Second, zerolog.Nop())
	if _, err := e.Execute(context.Background(), "flaky_tool", "{}"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestExecuteRemoteErrorFieldIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"sandbox quota exceeded"}`))
	}))
	defer srv.Close()

	e := NewExecutor(&fakeMarket{}, &fakeMemory{}, srv.URL, time.Second, zerolog.Nop())
	_, err := e.Execute(context.Background(), "execute_code", `{"code":"print(1)"}`)
	if err == nil || !strings.Contains(err.Error(), "sandbox quota exceeded") {
		t.Fatalf("expected body error to surface, got %v", err)
	}
}

func TestExecuteCodeWithoutEndpoint(t *testing.T) {
	e := NewExecutor(&fakeMarket{}, &fakeMemory{}, "", time.Second, zerolog.Nop())
	if _, err := e.Execute(context.Background(), registry.ToolExecuteCode, `{"code":"print(1)"}`); err == nil {
		t.Fatal("execute_code without an endpoint must fail")
	}
}
