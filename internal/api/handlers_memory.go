package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xmrt-ecosystem/assistant-server/internal/api/respond"
	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/services"
)

type MemoryHandler struct {
	svc *services.MemoryService
}

func NewMemoryHandler(svc *services.MemoryService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

// StoreMemory POST /api/memory
func (h *MemoryHandler) StoreMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content         string                 `json:"content"`
		ContextType     string                 `json:"context_type"`
		ImportanceScore float64                `json:"importance_score"`
		SessionID       *string                `json:"session_id,omitempty"`
		Metadata        map[string]interface{} `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	out, err := h.svc.StoreMemory(r.Context(), req.Content, req.ContextType, req.ImportanceScore, req.SessionID, req.Metadata)
	if err != nil {
		writeMemoryError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, map[string]interface{}{"memory_id": out.MemoryID})
}

// QueryMemory POST /api/memory/query
func (h *MemoryHandler) QueryMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query       string  `json:"query"`
		Limit       int     `json:"limit"`
		Threshold   float64 `json:"threshold"`
		ContextType string  `json:"context_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	out, err := h.svc.QueryMemory(r.Context(), req.Query, req.Limit, req.Threshold, req.ContextType)
	if err != nil {
		writeMemoryError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"memories": out, "count": len(out)})
}

func writeMemoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrValidation):
		respond.WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrNotConfigured):
		respond.WriteServiceUnavailable(w, "memory is not configured")
	case errors.Is(err, model.ErrProvider):
		respond.WriteBadGateway(w, "embedding service unavailable")
	default:
		respond.WriteInternalError(w, err.Error())
	}
}
