// Package middleware provides HTTP middleware for the datastore REST API:
// request logging, metrics, token auth, and rate limiting of the raw-SQL
// search endpoint.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cataloghq/datastore/internal/logging"
)

// RequestLogger creates a middleware that logs all HTTP requests using
// structured logging.
//
// This middleware:
// - Generates a unique request ID for tracing
// - Creates a request-scoped logger with standard fields
// - Stores the logger in both Gin and request context
// - Logs request completion with status and duration
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		start := time.Now()

		requestLogger := logger.With(
			zap.String(logging.FieldRequestID, requestID),
			zap.String(logging.FieldMethod, c.Request.Method),
			zap.String(logging.FieldPath, c.Request.URL.Path),
			zap.String(logging.FieldRemoteAddr, c.ClientIP()),
		)

		c.Set("logger", requestLogger)
		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(
			logging.WithLogger(c.Request.Context(), requestLogger))

		c.Next()

		requestLogger.Info("request completed",
			zap.Int(logging.FieldStatusCode, c.Writer.Status()),
			zap.Duration(logging.FieldDuration, time.Since(start)),
		)
	}
}
