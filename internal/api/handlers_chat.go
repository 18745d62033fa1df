package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xmrt-ecosystem/assistant-server/internal/api/respond"
	"github.com/xmrt-ecosystem/assistant-server/internal/dispatch"
	"github.com/xmrt-ecosystem/assistant-server/internal/model"
)

// Dispatcher is the slice of the dispatch loop the chat handler needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID, utterance string) (*dispatch.Result, error)
}

type ChatHandler struct {
	dispatcher Dispatcher
}

func NewChatHandler(d Dispatcher) *ChatHandler {
	return &ChatHandler{dispatcher: d}
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Success bool   `json:"success"`
	Reply   string `json:"reply,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HandleChat POST /api/chat
// The caller always receives either a successful reply or a labeled error;
// the user's turn is never silently dropped.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.SessionID == "" {
		respond.WriteBadRequest(w, "sessionId is required")
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), req.SessionID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidInput):
			respond.WriteBadRequest(w, err.Error())
		case errors.Is(err, model.ErrNotFound):
			respond.WriteNotFound(w, "session not found")
		case errors.Is(err, model.ErrNotConfigured):
			respond.WriteServiceUnavailable(w, "assistant is not configured")
		case errors.Is(err, model.ErrProvider):
			// Full detail goes to the audit log; the caller gets a generic,
			// non-sensitive message.
			respond.WriteJSON(w, http.StatusBadGateway, chatResponse{Success: false, Error: "assistant is temporarily unavailable"})
		default:
			respond.WriteInternalError(w, "internal error")
		}
		return
	}
	respond.WriteJSON(w, http.StatusOK, chatResponse{Success: true, Reply: res.Reply})
}
