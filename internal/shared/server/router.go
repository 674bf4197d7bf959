package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"auditdocs-backend/internal/chat"
	"auditdocs-backend/internal/documents"
	"auditdocs-backend/internal/shared/config"
	"auditdocs-backend/internal/shared/metrics"
	"auditdocs-backend/internal/shared/server/middleware"
	"auditdocs-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers wired into the router.
type RouterDeps struct {
	Config          config.Config
	DocumentHandler *documents.Handler
	ChatHandler     *chat.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Registered before the middleware chain so scrapes bypass auth.
	r.GET("/metrics", metrics.Handler())

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Config.Env),
		middleware.RateLimit(uploadRateLimits()),
	)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	registerMeRoutes(api)
	deps.DocumentHandler.RegisterRoutes(api)
	deps.ChatHandler.RegisterRoutes(api)

	return r
}

// uploadRateLimits throttles upload traffic per principal. Other routes pass
// through unmatched.
func uploadRateLimits() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"UPLOAD": {Rate: 0.5, Burst: 5},
		},
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodPost &&
				(c.FullPath() == "/api/v1/documents" || c.FullPath() == "/api/v1/documents/bulk") {
				return "UPLOAD"
			}
			return ""
		},
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
