package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPoolStatsCachesWithinTTL(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pool_statistics":{"hashRate":850000}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Minute, zerolog.Nop())
	for i := 0; i < 3; i++ {
		out, err := c.PoolStats(context.Background())
		if err != nil {
			t.Fatalf("pool stats: %v", err)
		}
		if out["pool_statistics"] == nil {
			t.Fatalf("unexpected payload: %v", out)
		}
	}
	if hits != 1 {
		t.Fatalf("upstream hit %d times within TTL, want 1", hits)
	}
}

func TestCacheExpires(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"monero":{"usd":161.2}}`))
	}))
	defer srv.Close()

	c := New("", srv.URL, 10*time.Millisecond, zerolog.Nop())
	if _, err := c.TokenPrice(context.Background()); err != nil {
		t.Fatalf("price: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := c.TokenPrice(context.Background()); err != nil {
		t.Fatalf("price: %v", err)
	}
	if hits != 2 {
		t.Fatalf("upstream hit %d times across TTL expiry, want 2", hits)
	}
}

func TestUpstreamErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Minute, zerolog.Nop())
	if _, err := c.PoolStats(context.Background()); err == nil {
		t.Fatal("expected error for upstream 503")
	}
}

func TestMissingURLIsError(t *testing.T) {
	c := New("", "", time.Minute, zerolog.Nop())
	if _, err := c.PoolStats(context.Background()); err == nil {
		t.Fatal("expected error when no URL configured")
	}
}
