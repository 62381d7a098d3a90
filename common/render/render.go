package render

import (
	"encoding/json"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
)

// SetEventStreamHeaders prepares c for server-sent events. X-Accel-Buffering
// keeps nginx from holding chunks back.
func SetEventStreamHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

// StringData writes one "data: " frame and flushes it.
func StringData(c *gin.Context, str string) error {
	str = strings.TrimSuffix(strings.TrimPrefix(str, "data: "), "\r")
	if _, err := c.Writer.WriteString("data: " + str + "\n\n"); err != nil {
		return errors.Wrap(err, "write sse frame")
	}
	c.Writer.Flush()
	return nil
}

// ObjectData marshals obj into one frame.
func ObjectData(c *gin.Context, obj any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return errors.Wrap(err, "marshal sse payload")
	}
	return StringData(c, string(raw))
}
