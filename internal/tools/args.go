package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/registry"
)

// Argument shapes form a tagged union: one struct per known tool plus a
// catch-all map for remote tools. Arguments are validated here, before
// anything reaches an external system.

type MiningStatsArgs struct{}

type TokenPriceArgs struct {
	Currency string `json:"currency"`
}

type QueryMemoryArgs struct {
	Query       string  `json:"query"`
	Limit       int     `json:"limit"`
	Threshold   float64 `json:"threshold"`
	ContextType string  `json:"context_type"`
}

type ExecuteCodeArgs struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// RemoteArgs is the catch-all variant for tools we do not know the schema of.
type RemoteArgs map[string]interface{}

// DecodeArgs parses raw provider-asserted arguments into the shape matching
// the tool name. Unknown tools decode into RemoteArgs.
func DecodeArgs(name, raw string) (interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	switch name {
	case registry.ToolMiningStats:
		var a MiningStatsArgs
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("%w: %s arguments: %v", model.ErrValidation, name, err)
		}
		return a, nil
	case registry.ToolTokenPrice:
		var a TokenPriceArgs
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("%w: %s arguments: %v", model.ErrValidation, name, err)
		}
		if a.Currency == "" {
			a.Currency = "usd"
		}
		return a, nil
	case registry.ToolQueryMemory:
		var a QueryMemoryArgs
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("%w: %s arguments: %v", model.ErrValidation, name, err)
		}
		if strings.TrimSpace(a.Query) == "" {
			return nil, fmt.Errorf("%w: %s requires a non-empty query", model.ErrValidation, name)
		}
		if a.Limit <= 0 {
			a.Limit = 5
		}
		return a, nil
	case registry.ToolExecuteCode:
		var a ExecuteCodeArgs
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("%w: %s arguments: %v", model.ErrValidation, name, err)
		}
		if strings.TrimSpace(a.Code) == "" {
			return nil, fmt.Errorf("%w: %s requires code", model.ErrValidation, name)
		}
		if a.Language == "" {
			a.Language = "python"
		}
		return a, nil
	default:
		var a RemoteArgs
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("%w: %s arguments: %v", model.ErrValidation, name, err)
		}
		return a, nil
	}
}
