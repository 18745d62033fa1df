// Package tools invokes the tools the dispatch loop selects: built-in XMRT
// tools locally, everything else over the generic HTTP tool boundary.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/registry"
)

// MarketSource is the slice of the market client the executor needs.
type MarketSource interface {
	PoolStats(ctx context.Context) (map[string]interface{}, error)
	TokenPrice(ctx context.Context) (map[string]interface{}, error)
}

// MemoryQuerier is the slice of the memory service the executor needs.
type MemoryQuerier interface {
	QueryMemory(ctx context.Context, query string, limit int, threshold float64, contextType string) ([]*model.MemoryEntry, error)
}

// Executor routes tool invocations. Each call is bounded by the configured
// timeout; failures are returned as errors for the dispatcher to capture.
type Executor struct {
	market   MarketSource
	memory   MemoryQuerier
	http     *resty.Client
	endpoint string
	timeout  time.Duration
	log      zerolog.Logger
}

// NewExecutor builds an Executor. endpoint is the base URL of the remote tool
// boundary; empty disables remote invocation (including execute_code).
func NewExecutor(market MarketSource, memory MemoryQuerier, endpoint string, timeout time.Duration, log zerolog.Logger) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{
		market:   market,
		memory:   memory,
		http:     resty.New().SetTimeout(timeout),
		endpoint: endpoint,
		timeout:  timeout,
		log:      log,
	}
}

// Execute validates arguments and invokes the named tool.
func (e *Executor) Execute(ctx context.Context, name, rawArgs string) (map[string]interface{}, error) {
	args, err := DecodeArgs(name, rawArgs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	switch a := args.(type) {
	case MiningStatsArgs:
		return e.market.PoolStats(ctx)
	case TokenPriceArgs:
		out, err := e.market.TokenPrice(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"currency": a.Currency, "price": out}, nil
	case QueryMemoryArgs:
		entries, err := e.memory.QueryMemory(ctx, a.Query, a.Limit, a.Threshold, a.ContextType)
		if err != nil {
			return nil, err
		}
		memories := make([]interface{}, 0, len(entries))
		for _, m := range entries {
			memories = append(memories, map[string]interface{}{
				"content":     m.Content,
				"contextType": m.ContextType,
				"similarity":  m.Similarity,
			})
		}
		return map[string]interface{}{"memories": memories, "count": len(memories)}, nil
	case ExecuteCodeArgs:
		return e.invokeRemote(ctx, registry.ToolExecuteCode, map[string]interface{}{
			"code":     a.Code,
			"language": a.Language,
		})
	case RemoteArgs:
		return e.invokeRemote(ctx, name, map[string]interface{}(a))
	default:
		return nil, fmt.Errorf("%w: unhandled argument shape for %s", model.ErrValidation, name)
	}
}

// invokeRemote POSTs arguments to the tool's HTTP endpoint. A non-2xx status
// or an "error" field in the body is a failure of this tool only.
func (e *Executor) invokeRemote(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	if e.endpoint == "" {
		return nil, fmt.Errorf("tool %s: no tool endpoint configured", name)
	}
	var body map[string]interface{}
	resp, err := e.http.R().
		SetContext(ctx).
		SetBody(args).
		SetResult(&body).
		Post(fmt.Sprintf("%s/%s", e.endpoint, name))
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tool %s: status %d", name, resp.StatusCode())
	}
	if msg, ok := body["error"].(string); ok && msg != "" {
		return nil, fmt.Errorf("tool %s: %s", name, msg)
	}
	return body, nil
}
