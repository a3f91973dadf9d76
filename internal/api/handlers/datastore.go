package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cataloghq/datastore/internal/action"
	"github.com/cataloghq/datastore/internal/auth"
	"github.com/cataloghq/datastore/internal/logging"
	"github.com/cataloghq/datastore/internal/metrics"
)

// DatastoreHandler dispatches datastore actions registered through the
// capability descriptor and serves decorated resource reads.
type DatastoreHandler struct {
	caps     action.Capabilities
	registry *action.Registry
	logger   *zap.Logger
}

// NewDatastoreHandler creates the action dispatch handler.
func NewDatastoreHandler(caps action.Capabilities, registry *action.Registry, logger *zap.Logger) *DatastoreHandler {
	return &DatastoreHandler{caps: caps, registry: registry, logger: logger}
}

// bearerToken mirrors the middleware helper; auth checks are evaluated per
// action name here because the descriptor, not the route table, decides
// which check guards which action.
func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

// Invoke handles POST /api/v1/action/:name.
//
// The payload is an arbitrary JSON object passed to the named handler.
// Unknown action names return 404; this includes datastore_search_sql in
// legacy mode, where the descriptor does not carry it.
func (h *DatastoreHandler) Invoke(c *gin.Context) {
	name := c.Param("name")

	handler, ok := h.caps.Actions[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}

	if check, ok := h.caps.AuthChecks[name]; ok && check != nil {
		if err := check(c.Request.Context(), bearerToken(c)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
	}

	payload := map[string]interface{}{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	start := time.Now()
	result, err := handler(c.Request.Context(), payload)
	metrics.ActionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ActionsTotal.WithLabelValues(name, "error").Inc()
		h.logger.Warn("datastore action failed",
			zap.String(logging.FieldAction, name),
			zap.Error(err),
		)
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrInvalidToken) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	metrics.ActionsTotal.WithLabelValues(name, "success").Inc()
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ShowResource handles GET /api/v1/resources/:id through the (possibly
// decorated) read action, so the response carries datastore_active when the
// datastore is configured.
func (h *DatastoreHandler) ShowResource(c *gin.Context) {
	read := h.registry.ReadAction()
	result, err := read(c.Request.Context(), &action.ReadRequest{ResourceID: c.Param("id")})
	if err != nil {
		h.logger.Warn("resource read failed",
			zap.String(logging.FieldResourceID, c.Param("id")),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resource read failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}
