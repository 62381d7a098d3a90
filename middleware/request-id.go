package middleware

import (
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/one-chat/one-chat/common/ctxkey"
	"github.com/one-chat/one-chat/common/random"
)

// RequestId tags the request, its response and its logger with a fresh id.
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := random.GetUUID()
		c.Set(ctxkey.RequestId, id)
		c.Header(ctxkey.RequestId, id)
		gmw.SetLogger(c, gmw.GetLogger(c).With(zap.String("request_id", id)))
		c.Next()
	}
}
