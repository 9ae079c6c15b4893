package v1

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"admissions-portal/portal-backend/internal/auth"
)

// Prefix is where every module's routes are mounted
const Prefix = "/api/v1"

// RouteRegistrar is implemented by each module's HTTP handler
type RouteRegistrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

// HealthFunc reports extra fields for the health check, e.g. session state
type HealthFunc func() gin.H

// NewRouter builds the HTTP router: CORS, staff identity, /health, and every
// module under /api/v1
func NewRouter(allowedOrigins []string, health HealthFunc, modules ...RouteRegistrar) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), CORS(allowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		}
		if health != nil {
			for k, v := range health() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	})

	api := router.Group(Prefix, auth.Identify())
	for _, m := range modules {
		m.RegisterRoutes(api)
	}
	return router
}

// CORS answers preflight requests and sets the allow headers. An empty list or
// "*" allows any origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	anyOrigin := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case anyOrigin:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowedOrigins, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With, X-User-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
