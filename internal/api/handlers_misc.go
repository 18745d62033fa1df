package api

import (
	"net/http"

	"github.com/xmrt-ecosystem/assistant-server/internal/api/respond"
	"github.com/xmrt-ecosystem/assistant-server/internal/market"
	"github.com/xmrt-ecosystem/assistant-server/internal/registry"
)

// ToolsHandler exposes the current registry view.
type ToolsHandler struct {
	reg *registry.Registry
}

func NewToolsHandler(reg *registry.Registry) *ToolsHandler {
	return &ToolsHandler{reg: reg}
}

// ListTools GET /api/tools
func (h *ToolsHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools := h.reg.List(r.Context())
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"tools": tools, "count": len(tools)})
}

// MarketHandler proxies the XMRT upstream feeds.
type MarketHandler struct {
	client *market.Client
}

func NewMarketHandler(client *market.Client) *MarketHandler {
	return &MarketHandler{client: client}
}

// MiningStats GET /api/market/mining
func (h *MarketHandler) MiningStats(w http.ResponseWriter, r *http.Request) {
	out, err := h.client.PoolStats(r.Context())
	if err != nil {
		respond.WriteBadGateway(w, "mining pool feed unavailable")
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// TokenPrice GET /api/market/price
func (h *MarketHandler) TokenPrice(w http.ResponseWriter, r *http.Request) {
	out, err := h.client.TokenPrice(r.Context())
	if err != nil {
		respond.WriteBadGateway(w, "price feed unavailable")
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// HealthHandler reports aggregated service health.
type HealthHandler struct {
	isHealthy func() bool
}

// NewHealthHandler binds the aggregated health flag. A nil func reports healthy,
// which keeps tests and minimal deployments simple.
func NewHealthHandler(isHealthy func() bool) *HealthHandler {
	return &HealthHandler{isHealthy: isHealthy}
}

// CheckHealth GET /api/health
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	if h.isHealthy != nil && !h.isHealthy() {
		respond.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unhealthy"})
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}
