package handlers

import (
	"github.com/gin-gonic/gin"

	"messenger-service/internal/observability"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(requestIDContextKey); id != "" {
		return id
	}
	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// userIDFromContext returns the authenticated user, if the auth middleware ran.
func userIDFromContext(c *gin.Context) *int64 {
	if id := c.GetInt64("userID"); id != 0 {
		return &id
	}
	return nil
}
