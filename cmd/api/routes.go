package main

import (
	"database/sql"
	"time"

	"agrivoice-platform/internal/agents"
	"agrivoice-platform/internal/analytics"
	"agrivoice-platform/internal/audit"
	"agrivoice-platform/internal/auth"
	"agrivoice-platform/internal/httpapi"
	"agrivoice-platform/internal/rbac"
	"agrivoice-platform/internal/telephony"
	"agrivoice-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	Auth      *auth.Manager
	Webhooks  telephony.Handlers
	Analytics *analytics.Service
	Audit     *audit.Service
	Agents    *agents.Directory
	DB        *sql.DB
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.DB, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by provider signature validation
	// in production.
	webhooks := r.Group(deps.Webhooks.BasePath)
	deps.Webhooks.Register(webhooks)

	api := httpapi.Handlers{
		Auth:      deps.Auth,
		Analytics: deps.Analytics,
		Audit:     deps.Audit,
		Agents:    deps.Agents,
	}

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	v1.POST("/auth/login", api.Login)

	protected := v1.Group("")
	protected.Use(auth.RequireAccessToken(deps.Auth))
	{
		// ANALYTICS routes: readable by every role.
		analyticsGroup := protected.Group("/analytics")
		analyticsGroup.Use(rbac.RequireAnyRole(rbac.RoleAnalyst, rbac.RoleSupport))
		{
			analyticsGroup.GET("/overview", api.GetOverview)
			analyticsGroup.GET("/patterns", api.GetPatterns)
			analyticsGroup.GET("/dashboard", api.GetDashboard)
			analyticsGroup.GET("/export", api.Export)
		}

		// SESSION routes
		sessions := protected.Group("/sessions")
		sessions.Use(rbac.RequireAnyRole(rbac.RoleAnalyst, rbac.RoleSupport))
		{
			sessions.GET("", api.ListSessions)
			sessions.GET("/active", api.ListActiveSessions)
			sessions.GET("/:session_id", api.GetSession)
		}

		// ADMIN routes: retention cleanup and agent pool management.
		admin := protected.Group("/admin")
		admin.Use(rbac.RequireAnyRole())
		{
			admin.POST("/cleanup", api.Cleanup)
			admin.POST("/agents", api.AddAgent)
			admin.DELETE("/agents/:agent", api.RemoveAgent)
		}
	}
}
