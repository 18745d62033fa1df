package provider

import (
	"context"
	"sync"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
)

// Stub is a scripted provider for tests. Responses are returned in order;
// when exhausted the last one repeats. Err, when set, fails every call.
type Stub struct {
	mu        sync.Mutex
	Responses []Response
	Err       error

	Calls     [][]Message
	ToolsSeen [][]model.ToolDescriptor
	next      int
}

func (s *Stub) Chat(ctx context.Context, messages []Message, tools []model.ToolDescriptor) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, messages)
	s.ToolsSeen = append(s.ToolsSeen, tools)
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return &Response{Content: "ok"}, nil
	}
	i := s.next
	if i >= len(s.Responses) {
		i = len(s.Responses) - 1
	}
	s.next++
	resp := s.Responses[i]
	return &resp, nil
}
