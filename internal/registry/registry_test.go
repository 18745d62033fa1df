package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestListWithoutURLServesFallback(t *testing.T) {
	r := New("", time.Minute, zerolog.Nop())
	tools := r.List(context.Background())
	if len(tools) != 4 {
		t.Fatalf("fallback set = %d tools, want 4", len(tools))
	}
	names := map[string]bool{}
	for _, td := range tools {
		names[td.Name] = true
	}
	for _, want := range []string{ToolMiningStats, ToolTokenPrice, ToolQueryMemory, ToolExecuteCode} {
		if !names[want] {
			t.Fatalf("fallback set missing %s", want)
		}
	}
}

func TestListMergesRemoteWithFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"name":"get_dao_proposals","description":"List open proposals","parameters":{"type":"object"}},
			{"name":"get_mining_stats","description":"remote override","parameters":{"type":"object"}}
		]`))
	}))
	defer srv.Close()

	r := New(srv.URL, time.Minute, zerolog.Nop())
	tools := r.List(context.Background())

	// Two remote tools plus the three fallback tools not shadowed by name.
	if len(tools) != 5 {
		t.Fatalf("merged set = %d tools, want 5", len(tools))
	}
	if tools[0].Name != "get_dao_proposals" {
		t.Fatalf("remote tools should come first, got %s", tools[0].Name)
	}
	for _, td := range tools {
		if td.Name == ToolMiningStats && td.Description != "remote override" {
			t.Fatal("remote descriptor should shadow the built-in of the same name")
		}
	}
}

func TestListCachesWithinTTL(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"remote_tool","description":"d","parameters":{"type":"object"}}]`))
	}))
	defer srv.Close()

	r := New(srv.URL, time.Minute, zerolog.Nop())
	r.List(context.Background())
	r.List(context.Background())
	r.List(context.Background())
	if hits != 1 {
		t.Fatalf("registry fetched %d times within TTL, want 1", hits)
	}
}

func TestListFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(srv.URL, time.Minute, zerolog.Nop())
	tools := r.List(context.Background())
	if len(tools) != 4 {
		t.Fatalf("expected fallback set on server error, got %d tools", len(tools))
	}
}

func TestListFallsBackOnMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"description":"tool with no name"}]`))
	}))
	defer srv.Close()

	r := New(srv.URL, time.Minute, zerolog.Nop())
	tools := r.List(context.Background())
	if len(tools) != 4 {
		t.Fatalf("expected fallback set on malformed payload, got %d tools", len(tools))
	}
}

func TestListFallsBackWhenUnreachable(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	r := New(url, time.Minute, zerolog.Nop())
	tools := r.List(context.Background())
	if len(tools) != 4 {
		t.Fatalf("expected fallback set when unreachable, got %d tools", len(tools))
	}
}
