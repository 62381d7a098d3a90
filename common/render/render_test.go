package render

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestObjectDataFrames(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SetEventStreamHeaders(c)
	require.NoError(t, ObjectData(c, map[string]any{"type": "content", "chunk": "hi"}))
	require.NoError(t, StringData(c, "data: [DONE]\r"))

	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	require.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))
	require.Equal(t, "data: {\"chunk\":\"hi\",\"type\":\"content\"}\n\ndata: [DONE]\n\n", w.Body.String())
	require.True(t, w.Flushed)
}
