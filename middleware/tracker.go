package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/one-chat/one-chat/common/graceful"
)

// TrackInFlight counts requests for graceful shutdown and turns new ones
// away once draining has started.
func TrackInFlight() gin.HandlerFunc {
	return func(c *gin.Context) {
		if graceful.IsDraining() {
			c.Header("Connection", "close")
			AbortWithMessage(c, http.StatusServiceUnavailable, "Server is shutting down. Please retry.")
			return
		}
		done := graceful.BeginRequest()
		defer done()
		c.Next()
	}
}

// SecurityHeaders sets the headers served with every page.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Next()
	}
}
