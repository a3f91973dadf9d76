// Package handlers implements the HTTP handlers of the datastore API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cataloghq/datastore/internal/datastore"
)

// HealthHandler handles health and bootstrap-status endpoints.
type HealthHandler struct {
	plugin *datastore.Plugin
}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler(plugin *datastore.Plugin) *HealthHandler {
	return &HealthHandler{plugin: plugin}
}

// StatusResponse reports the bootstrap state and privilege audit result.
type StatusResponse struct {
	State             string `json:"state"`
	Mode              string `json:"mode,omitempty"`
	IsReadOnlyReplica bool   `json:"is_read_only_replica,omitempty"`
}

// Liveness handles GET /health/live.
//
// It returns 200 OK as long as the HTTP server is running.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status handles GET /health/status, reporting the bootstrap outcome.
// The datastore being Disabled or Failed is visible here without exposing
// any endpoint URL.
func (h *HealthHandler) Status(c *gin.Context) {
	resp := StatusResponse{State: string(h.plugin.State())}
	if cfg := h.plugin.Config(); cfg != nil {
		resp.Mode = string(cfg.Mode)
	}
	if report := h.plugin.Report(); report != nil {
		resp.IsReadOnlyReplica = report.IsReadOnlyReplica
	}

	status := http.StatusOK
	if h.plugin.State() != datastore.StateConfigured {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
