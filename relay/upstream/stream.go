package upstream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/one-chat/one-chat/monitor"
	"github.com/one-chat/one-chat/relay/model"
	"github.com/one-chat/one-chat/relay/thinking"
)

type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseStreaming
	PhaseDone
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming_deltas"
	case PhaseDone:
		return "done"
	case PhaseError:
		return "error"
	default:
		return "idle"
	}
}

// Stream is the consumer side of one streaming call. Events are delivered in
// classifier order and the channel is closed when the producer returns.
type Stream struct {
	events chan model.StreamEvent
	phase  atomic.Int32
	// err is written before events is closed.
	err error
}

func (s *Stream) Events() <-chan model.StreamEvent { return s.events }

func (s *Stream) Phase() Phase { return Phase(s.phase.Load()) }

// Err returns the cause of a failed stream. Only meaningful after Events is drained.
func (s *Stream) Err() error { return s.err }

func (s *Stream) setPhase(p Phase) { s.phase.Store(int32(p)) }

// Stream starts the upstream call in its own goroutine. Cancelling ctx stops
// reading and closes the upstream body; no further events are sent.
// Transport failures, timeouts and non-2xx statuses surface as a single
// content event carrying a readable error, followed by the channel closing.
func (c *Client) Stream(ctx context.Context, in ChatInput) *Stream {
	s := &Stream{events: make(chan model.StreamEvent)}
	go c.produce(ctx, in, s)
	return s
}

func (c *Client) produce(ctx context.Context, in ChatInput, s *Stream) {
	defer close(s.events)

	lg := gmw.GetLogger(ctx).With(zap.String("model", in.Model))
	start := time.Now()
	s.setPhase(PhaseSending)

	reqCtx, cancel := context.WithTimeout(ctx, c.Timeout(in))
	defer cancel()

	resp, err := c.postJSON(reqCtx, "/chat/completions", c.BuildPayload(in, true))
	if err != nil {
		c.failStream(ctx, lg, s, in.Model, start, err, transportMessage(reqCtx, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err = errors.Errorf("upstream status %d: %s", resp.StatusCode, truncate(string(body), 512))
		c.failStream(ctx, lg, s, in.Model, start, err, fmt.Sprintf(msgAPIError, resp.StatusCode))
		return
	}

	s.setPhase(PhaseStreaming)
	done := monitor.TrackStream()
	defer done()

	classifier := thinking.NewClassifier()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	chunks := 0
	for scanner.Scan() {
		data := NormalizeDataLine(scanner.Text())
		if !strings.HasPrefix(data, DataPrefix) {
			continue
		}
		payload := strings.TrimSpace(data[len(DataPrefix):])
		if strings.HasPrefix(payload, Done) {
			break
		}

		ck, ok := parseChunk(payload)
		if !ok {
			lg.Warn("failed to parse streaming chunk, skipping", zap.String("chunk_data", payload))
			continue
		}
		chunks++
		if ck.errorMsg != "" {
			err = errors.Errorf("upstream stream error: %s", ck.errorMsg)
			c.failStream(ctx, lg, s, in.Model, start, err, fmt.Sprintf(msgBotError, ck.errorMsg))
			return
		}
		for _, ev := range classifier.Feed(ck.delta) {
			if !s.emit(ctx, ev) {
				s.abort(lg, ctx.Err())
				return
			}
		}
	}

	if err = scanner.Err(); err != nil {
		if ctx.Err() != nil {
			s.abort(lg, ctx.Err())
			return
		}
		c.failStream(ctx, lg, s, in.Model, start, err, transportMessage(reqCtx, err))
		return
	}

	for _, ev := range classifier.Flush() {
		if !s.emit(ctx, ev) {
			s.abort(lg, ctx.Err())
			return
		}
	}

	s.setPhase(PhaseDone)
	monitor.RecordUpstream(in.Model, "ok", time.Since(start))
	lg.Debug("upstream stream finished",
		zap.Int("chunks", chunks),
		zap.Duration("elapsed", time.Since(start)))
}

// emit blocks until the consumer takes ev or ctx ends.
func (s *Stream) emit(ctx context.Context, ev model.StreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) abort(lg glog.Logger, cause error) {
	s.err = errors.Wrap(cause, "stream cancelled")
	s.setPhase(PhaseError)
	lg.Info("stream cancelled by caller", zap.Error(cause))
}

func (c *Client) failStream(ctx context.Context, lg glog.Logger, s *Stream,
	modelName string, start time.Time, cause error, userMsg string) {
	s.err = cause
	s.setPhase(PhaseError)
	monitor.RecordUpstream(modelName, "error", time.Since(start))
	if ctx.Err() != nil {
		lg.Info("stream cancelled by caller", zap.Error(cause))
		return
	}

	lg.Error("upstream stream failed", zap.Error(cause))
	s.emit(ctx, model.ContentEvent(userMsg))
}

// transportMessage maps a failed round trip to the text shown to the user.
func transportMessage(reqCtx context.Context, err error) string {
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return MsgNoResponse
	}
	return fmt.Sprintf(msgBotError, rootCause(err))
}

func rootCause(err error) string {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok || u.Unwrap() == nil {
			return err.Error()
		}
		err = u.Unwrap()
	}
}
