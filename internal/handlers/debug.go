package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/telemetry"
)

// PresenceSnapshot lists the users holding at least one live session.
type PresenceSnapshot interface {
	OnlineCounter
	OnlineUsers() []int64
}

// RegisterDebugRoutes wires the operator endpoints behind the given middleware (the auth
// middleware in production). Nothing is mounted unless enabled.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, presence PresenceSnapshot, enabled bool, middleware ...gin.HandlerFunc) {
	if !enabled {
		return
	}

	debug := router.Group("/debug", middleware...)
	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	debug.GET("/presence", func(c *gin.Context) {
		if presence == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hub not configured"})
			return
		}
		users := presence.OnlineUsers()
		if users == nil {
			users = []int64{}
		}
		c.JSON(http.StatusOK, gin.H{
			"online_users": users,
			"sessions":     presence.Count(),
		})
	})
}
