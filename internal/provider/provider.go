// Package provider abstracts the completion provider that both answers text
// and selects tools.
package provider

import (
	"context"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
)

// Chat roles used on the provider wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn in a provider conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is one tool invocation requested by the provider. Arguments is the
// raw JSON object string as the provider produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Response is the provider's answer: either content, tool calls, or both.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// CompletionProvider sends a conversation plus the available tool descriptors
// and returns the model's decision.
type CompletionProvider interface {
	Chat(ctx context.Context, messages []Message, tools []model.ToolDescriptor) (*Response, error)
}
