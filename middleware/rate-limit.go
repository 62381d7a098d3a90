package middleware

import (
	"net/http"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/one-chat/one-chat/common/ratelimit"
	"github.com/one-chat/one-chat/monitor"
)

// RateLimit admits requests through ledger, keyed by the resolved user key.
// Requests without an identity pass through so the handler can reject them
// with its own message. A failing ledger admits the request.
func RateLimit(ledger ratelimit.Ledger, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := UserKey(c)
		if key == "" {
			c.Next()
			return
		}

		ok, err := ledger.Allow(c.Request.Context(), key)
		if err != nil {
			gmw.GetLogger(c).Warn("rate limit ledger unavailable, admitting request", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			monitor.RecordRateLimited()
			AbortWithMessage(c, http.StatusTooManyRequests, message)
			return
		}
		c.Next()
	}
}
