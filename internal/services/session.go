package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/store"
)

const welcomeMessage = "Welcome to the XMRT DAO assistant. Ask about mining stats, token prices, or anything the DAO remembers."

// SessionService is the façade over conversation state.
type SessionService struct {
	store store.Store
}

func NewSessionService(s store.Store) *SessionService {
	return &SessionService{store: s}
}

// CreateSession inserts a new session and seeds it with a welcome message.
// Store errors propagate, never silently.
func (s *SessionService) CreateSession(ctx context.Context, label string) (*model.Session, error) {
	sess, err := s.store.Sessions().Create(ctx, &model.Session{Label: label})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if _, err := s.store.Messages().Append(ctx, &model.Message{
		SessionID: sess.SessionID,
		Role:      model.RoleAssistant,
		Content:   welcomeMessage,
	}); err != nil {
		return nil, fmt.Errorf("seed welcome message: %w", err)
	}
	return sess, nil
}

// GetSession returns the session or model.ErrNotFound.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.store.Sessions().Get(ctx, sessionID)
}

// AppendMessage strictly appends; model.ErrNotFound when the session does not exist.
func (s *SessionService) AppendMessage(ctx context.Context, sessionID, role, content string, metadata map[string]interface{}) (*model.Message, error) {
	if role != model.RoleUser && role != model.RoleAssistant {
		return nil, fmt.Errorf("%w: unknown role %q", model.ErrValidation, role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty message content", model.ErrInvalidInput)
	}
	return s.store.Messages().Append(ctx, &model.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
	})
}

// ListMessages returns the session's messages in ascending timestamp order.
// A session with no messages yields an empty slice, not an error.
func (s *SessionService) ListMessages(ctx context.Context, sessionID string) ([]*model.Message, error) {
	return s.store.Messages().List(ctx, sessionID)
}

// ClearSession atomically deletes all messages of the session.
func (s *SessionService) ClearSession(ctx context.Context, sessionID string) error {
	return s.store.Messages().Clear(ctx, sessionID)
}
