package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xmrt-ecosystem/assistant-server/internal/api/respond"
	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/services"
)

type SessionHandler struct {
	svc *services.SessionService
}

func NewSessionHandler(svc *services.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// CreateSession POST /api/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.WriteBadRequest(w, "Invalid JSON")
			return
		}
	}
	out, err := h.svc.CreateSession(r.Context(), req.Label)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}

// GetSession GET /api/sessions/{sessionId}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	out, err := h.svc.GetSession(r.Context(), v["sessionId"])
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "session not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// ListMessages GET /api/sessions/{sessionId}/messages
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	out, err := h.svc.ListMessages(r.Context(), v["sessionId"])
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "session not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	if out == nil {
		out = []*model.Message{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"messages": out, "count": len(out)})
}

// ClearSession DELETE /api/sessions/{sessionId}/messages
func (h *SessionHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if err := h.svc.ClearSession(r.Context(), v["sessionId"]); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "session not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}
