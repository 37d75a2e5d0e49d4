package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	googleauth "confirmation-backend/internal/auth"
	"confirmation-backend/internal/documents"
	"confirmation-backend/internal/review"
	"confirmation-backend/internal/shared/config"
	"confirmation-backend/internal/shared/metrics"
	"confirmation-backend/internal/shared/server/middleware"
	"confirmation-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router wires up. Construction of the
// underlying services lives in bootstrap.
type RouterDeps struct {
	Config          config.Config
	DocumentHandler *documents.Handler
	ReviewHandler   *review.Handler
	GoogleAuth      *googleauth.GoogleService
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Config.Env),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	registerMeRoutes(api)

	// Uploads are the expensive entry point; everything else is cheap reads
	// and small writes.
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"UPLOAD":  {Rate: 0.5, Burst: 5},
			"DEFAULT": {Rate: 10, Burst: 30},
		},
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/documents" {
				return "UPLOAD"
			}
			return "DEFAULT"
		},
	}))

	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(api)
	}
	if deps.ReviewHandler != nil {
		deps.ReviewHandler.RegisterRoutes(api)
	}

	return r
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
