package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/tidwall/gjson"

	"github.com/one-chat/one-chat/monitor"
	"github.com/one-chat/one-chat/relay/thinking"
)

// Request performs a non-streaming chat call and returns the answer with any
// complete thinking blocks removed. On failure the returned string is the
// user-facing error text and err carries the cause.
func (c *Client) Request(ctx context.Context, in ChatInput) (string, error) {
	lg := gmw.GetLogger(ctx).With(zap.String("model", in.Model))
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.Timeout(in))
	defer cancel()

	resp, err := c.postJSON(reqCtx, "/chat/completions", c.BuildPayload(in, false))
	if err != nil {
		monitor.RecordUpstream(in.Model, "error", time.Since(start))
		lg.Error("upstream request failed", zap.Error(err))
		return transportMessage(reqCtx, err), err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		monitor.RecordUpstream(in.Model, "error", time.Since(start))
		return transportMessage(reqCtx, err), errors.Wrap(err, "read upstream response")
	}

	if resp.StatusCode != http.StatusOK {
		monitor.RecordUpstream(in.Model, "error", time.Since(start))
		err = errors.Errorf("upstream status %d: %s", resp.StatusCode, truncate(string(body), 512))
		lg.Error("upstream request failed", zap.Error(err))
		return fmt.Sprintf(msgAPIError, resp.StatusCode), err
	}

	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		monitor.RecordUpstream(in.Model, "error", time.Since(start))
		return fmt.Sprintf(msgBotError, msg), errors.Errorf("upstream error: %s", msg)
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		monitor.RecordUpstream(in.Model, "error", time.Since(start))
		return MsgNoResponse, errors.New("upstream response has no choices")
	}

	monitor.RecordUpstream(in.Model, "ok", time.Since(start))
	return strings.TrimSpace(thinking.Strip(content.String())), nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
