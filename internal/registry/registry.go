// Package registry produces the set of tools the assistant may invoke.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
)

// Built-in tool names. These are always available, with or without a live
// registry.
const (
	ToolMiningStats = "get_mining_stats"
	ToolTokenPrice  = "get_token_price"
	ToolQueryMemory = "query_memory"
	ToolExecuteCode = "execute_code"
)

// Registry fetches tool descriptors from an external endpoint and falls back
// to the built-in set when the endpoint is unavailable. List never fails:
// registry unavailability degrades capability, it does not fail the request.
type Registry struct {
	http *resty.Client
	url  string
	ttl  time.Duration
	log  zerolog.Logger

	mu      sync.Mutex
	cached  []model.ToolDescriptor
	fetched time.Time
}

// New builds a Registry. url may be empty, in which case only the built-in
// set is served. ttl bounds how long a live result is reused.
func New(url string, ttl time.Duration, log zerolog.Logger) *Registry {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Registry{
		http: resty.New().SetTimeout(10 * time.Second),
		url:  url,
		ttl:  ttl,
		log:  log,
	}
}

// List returns the current tool set. Live results are cached for the TTL;
// any fetch failure degrades to the built-in fallback.
func (r *Registry) List(ctx context.Context) []model.ToolDescriptor {
	if r.url == "" {
		return Fallback()
	}

	r.mu.Lock()
	if r.cached != nil && time.Since(r.fetched) < r.ttl {
		out := r.cached
		r.mu.Unlock()
		return out
	}
	r.mu.Unlock()

	var remote []model.ToolDescriptor
	resp, err := r.http.R().SetContext(ctx).SetResult(&remote).Get(r.url)
	if err != nil || resp.IsError() || len(remote) == 0 {
		status := 0
		if resp != nil {
			status = resp.StatusCode()
		}
		r.log.Warn().Err(err).Int("status", status).Msg("tool registry unavailable, using fallback set")
		return Fallback()
	}
	for _, td := range remote {
		if td.Name == "" {
			r.log.Warn().Msg("tool registry returned unnamed tool, using fallback set")
			return Fallback()
		}
	}

	tools := merge(remote, Fallback())
	r.mu.Lock()
	r.cached = tools
	r.fetched = time.Now()
	r.mu.Unlock()
	return tools
}

// merge appends fallback tools not shadowed by a remote tool of the same name.
func merge(remote, fallback []model.ToolDescriptor) []model.ToolDescriptor {
	seen := make(map[string]bool, len(remote))
	out := make([]model.ToolDescriptor, 0, len(remote)+len(fallback))
	for _, td := range remote {
		seen[td.Name] = true
		out = append(out, td)
	}
	for _, td := range fallback {
		if !seen[td.Name] {
			out = append(out, td)
		}
	}
	return out
}

// Fallback returns the fixed built-in tool set.
func Fallback() []model.ToolDescriptor {
	return []model.ToolDescriptor{
		{
			Name:        ToolMiningStats,
			Description: "Fetch current XMRT mining pool statistics (hashrate, miners, blocks found).",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        ToolTokenPrice,
			Description: "Fetch the current XMR/XMRT token price from the market feed.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"currency": map[string]interface{}{
						"type":        "string",
						"description": "Quote currency, defaults to usd.",
					},
				},
			},
		},
		{
			Name:        ToolQueryMemory,
			Description: "Search the assistant's long-term memory by semantic similarity.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Natural-language search query.",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum results, defaults to 5.",
					},
					"context_type": map[string]interface{}{
						"type":        "string",
						"description": "Optional context-type filter.",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolExecuteCode,
			Description: "Execute a code snippet in the sandboxed executor and return its output.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"code": map[string]interface{}{
						"type":        "string",
						"description": "Source code to run.",
					},
					"language": map[string]interface{}{
						"type":        "string",
						"description": "Language, defaults to python.",
					},
				},
				"required": []string{"code"},
			},
		},
	}
}
