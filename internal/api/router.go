// Package api wires the datastore HTTP surface: action dispatch, decorated
// resource reads, health/status, and metrics.
package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cataloghq/datastore/internal/action"
	"github.com/cataloghq/datastore/internal/api/handlers"
	"github.com/cataloghq/datastore/internal/api/middleware"
	"github.com/cataloghq/datastore/internal/auth"
	"github.com/cataloghq/datastore/internal/datastore"
	"github.com/cataloghq/datastore/internal/metrics"
)

// RouterConfig holds configuration for setting up the HTTP router.
type RouterConfig struct {
	// Plugin is the configured datastore subsystem.
	Plugin *datastore.Plugin

	// Registry holds the (decorated) read-resource action.
	Registry *action.Registry

	// Logger is the Zap logger for request logging.
	Logger *zap.Logger

	// Secret is the HMAC secret for token verification.
	Secret string

	// WriteTokenHash authorizes the mutating actions.
	WriteTokenHash string

	// ReadTokenHash authorizes the search actions.
	ReadTokenHash string

	// SearchSQLRPS limits raw-SQL searches per second per client.
	SearchSQLRPS float64
}

// SetupRouter creates and configures the Gin HTTP router.
//
// The action routes exist only when the datastore reached the Configured
// state; a Disabled or Failed datastore still serves health and metrics so
// operators can see why.
func SetupRouter(cfg *RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger(cfg.Logger))

	health := handlers.NewHealthHandler(cfg.Plugin)
	router.GET("/health/live", health.Liveness)
	router.GET("/health/status", health.Status)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	if cfg.Plugin.State() != datastore.StateConfigured {
		return router
	}

	writeAuth := authCheck(auth.NewVerifier(cfg.Secret, cfg.WriteTokenHash))
	readAuth := authCheck(auth.NewVerifier(cfg.Secret, cfg.ReadTokenHash))
	caps := cfg.Plugin.Capabilities(writeAuth, readAuth)
	ds := handlers.NewDatastoreHandler(caps, cfg.Registry, cfg.Logger)

	rps := cfg.SearchSQLRPS
	if rps <= 0 {
		rps = 1
	}
	sqlLimiter := middleware.NewRateLimiter(rps, 5)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/action/:name", searchSQLGuard(sqlLimiter), ds.Invoke)
		v1.GET("/resources/:id", ds.ShowResource)
	}

	return router
}

// authCheck adapts a token verifier to the descriptor's AuthCheck shape.
func authCheck(v *auth.Verifier) action.AuthCheck {
	return func(_ context.Context, token string) error {
		return v.Verify(token)
	}
}

// searchSQLGuard applies the tight raw-SQL budget to datastore_search_sql
// only; other actions pass through.
func searchSQLGuard(limiter *middleware.RateLimiter) gin.HandlerFunc {
	limit := limiter.Middleware()
	return func(c *gin.Context) {
		if c.Param("name") == action.ActionSearchSQL {
			limit(c)
			return
		}
		c.Next()
	}
}
