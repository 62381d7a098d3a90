package middleware

import (
	"context"
	"fmt"
	"net/http"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/one-chat/one-chat/common/ctxkey"
)

// AbortWithError aborts the request with {"error": message}. Client errors
// show err's message as is; server errors are logged in full and answered
// with a generic message carrying the request id.
func AbortWithError(c *gin.Context, statusCode int, err error) {
	logger := gmw.GetLogger(c)
	message := err.Error()
	if statusCode >= http.StatusInternalServerError {
		logger.Error("server abort", zap.Int("status_code", statusCode), zap.Error(err))
		message = fmt.Sprintf("Error: internal server error (request id: %s)", c.GetString(ctxkey.RequestId))
	} else {
		logger.Debug("client abort", zap.Int("status_code", statusCode), zap.Error(err))
	}

	c.AbortWithStatusJSON(statusCode, gin.H{"error": message})
}

// AbortWithMessage aborts with a message meant for the user, whatever the status.
func AbortWithMessage(c *gin.Context, statusCode int, message string) {
	gmw.GetLogger(c).Debug("abort", zap.Int("status_code", statusCode), zap.String("message", message))
	c.AbortWithStatusJSON(statusCode, gin.H{"error": message})
}

// RequestContext returns the request's context carrying the request-scoped
// logger. It is cancelled when the client goes away.
func RequestContext(c *gin.Context) context.Context {
	return gmw.SetLogger(c.Request.Context(), gmw.GetLogger(c))
}
