package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pawprint/petfeed/internal/cache"
	"github.com/pawprint/petfeed/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Router sets up API routes
type Router struct {
	handler *JSONRPCHandler
	feed    *FeedAPI
	checks  map[string]HealthCheck
	logger  *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(feedAPI *FeedAPI, checks map[string]HealthCheck) *Router {
	router := &Router{
		handler: NewJSONRPCHandler(),
		feed:    feedAPI,
		checks:  checks,
		logger:  logging.WithComponent("api-router"),
	}

	// Register all API methods
	router.registerMethods()

	return router
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	// JSON-RPC endpoint
	engine.POST("/", r.handler.Handle)
}

// registerMethods registers all API methods
func (r *Router) registerMethods() {
	r.handler.RegisterMethod("feed.open", r.feed.Open)
	r.handler.RegisterMethod("feed.load_more", r.feed.LoadMore)
	r.handler.RegisterMethod("feed.refresh", r.feed.Refresh)
	r.handler.RegisterMethod("feed.state", r.feed.State)
	r.handler.RegisterMethod("feed.close", r.feed.Close)
	r.handler.RegisterMethod("feed.like", r.feed.Like)
	r.handler.RegisterMethod("feed.unlike", r.feed.Unlike)
	r.handler.RegisterMethod("feed.notifications", r.feed.Notifications)
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range r.checks {
		err := check(ctx)
		switch {
		case err == nil:
			deps[name] = "OK"
		case errors.Is(err, cache.ErrCacheDisabled):
			deps[name] = "disabled"
		default:
			r.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, gin.H{
		"status":       http.StatusText(status),
		"service":      "petfeed-api",
		"dependencies": deps,
		"sessions":     r.feed.registry.Len(),
	})
}
