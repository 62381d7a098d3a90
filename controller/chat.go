package controller

import (
	"context"
	"encoding/base64"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/common/graceful"
	"github.com/one-chat/one-chat/common/image"
	"github.com/one-chat/one-chat/common/render"
	"github.com/one-chat/one-chat/middleware"
	"github.com/one-chat/one-chat/model"
	"github.com/one-chat/one-chat/monitor"
	"github.com/one-chat/one-chat/relay/assembler"
	"github.com/one-chat/one-chat/relay/catalog"
	"github.com/one-chat/one-chat/relay/contextwindow"
	relaymodel "github.com/one-chat/one-chat/relay/model"
	"github.com/one-chat/one-chat/relay/upstream"
)

const (
	msgNotIdentified   = "User not identified"
	msgEmptyMessage    = "Message cannot be empty"
	msgInvalidImage    = "Invalid image data"
	msgImagePremium    = "Image generation is only available for premium users."
	msgStreamCancelled = "Error: Stream cancelled."

	persistAttempts = 3
	persistBackoff  = 200 * time.Millisecond
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationId string `json:"conversation_id"`
	// Image is base64 or a data URL.
	Image     string `json:"image"`
	WebSearch *bool  `json:"web_search"`
}

// turn is a validated chat request with everything needed to call upstream.
type turn struct {
	owner          string
	premium        bool
	text           string
	model          string
	conversationId string
	input          upstream.ChatInput
	// pending is persisted ahead of the assistant answer.
	pending    []relaymodel.Message
	documentId string
}

type streamFrame struct {
	Type           string `json:"type"`
	Chunk          string `json:"chunk"`
	Model          string `json:"model"`
	ConversationId string `json:"conversation_id"`
}

type doneFrame struct {
	Type           string `json:"type"`
	Done           bool   `json:"done"`
	Model          string `json:"model"`
	ConversationId string `json:"conversation_id"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Chat answers one turn as a single JSON response.
func (r *Relay) Chat(c *gin.Context) {
	t, ok := r.prepareTurn(c, false)
	if !ok {
		return
	}

	lg := gmw.GetLogger(c)
	answer, err := r.Engine.Request(middleware.RequestContext(c), t.input)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		lg.Warn("upstream request failed", zap.String("model", t.model), zap.Error(err))
	}
	monitor.RecordRelayRequest("chat", t.model, outcome)

	r.persistTurn(c, t, answer)
	c.JSON(http.StatusOK, gin.H{
		"type":            "chat",
		"response":        answer,
		"model":           t.model,
		"conversation_id": t.conversationId,
	})
}

// ChatStream answers one turn as server-sent events.
func (r *Relay) ChatStream(c *gin.Context) {
	t, ok := r.prepareTurn(c, true)
	if !ok {
		return
	}

	lg := gmw.GetLogger(c)
	ctx, release := r.streams.start(middleware.RequestContext(c), t.owner)
	defer release()

	stream := r.Engine.Stream(ctx, t.input)
	render.SetEventStreamHeaders(c)
	c.Status(http.StatusOK)

	var answer strings.Builder
	clientGone := false
	for ev := range stream.Events() {
		monitor.RecordStreamEvent(string(ev.Kind))
		if ev.Kind == relaymodel.EventContent {
			answer.WriteString(ev.Text)
		}
		if clientGone {
			continue
		}
		if err := render.ObjectData(c, streamFrame{
			Type:           string(ev.Kind),
			Chunk:          ev.Text,
			Model:          t.model,
			ConversationId: t.conversationId,
		}); err != nil {
			clientGone = true
			lg.Debug("client went away mid-stream", zap.Error(err))
		}
	}

	cancelled := stream.Phase() == upstream.PhaseError && ctx.Err() != nil
	if !cancelled || answer.Len() > 0 {
		// must be queued before the done frame is written
		r.persistTurn(c, t, answer.String())
	}

	switch {
	case cancelled:
		monitor.RecordRelayRequest("chat_stream", t.model, "cancelled")
		if c.Request.Context().Err() == nil {
			_ = render.ObjectData(c, errorFrame{Type: string(relaymodel.EventError), Error: msgStreamCancelled})
		}
		return
	case stream.Phase() == upstream.PhaseError:
		monitor.RecordRelayRequest("chat_stream", t.model, "error")
	default:
		monitor.RecordRelayRequest("chat_stream", t.model, "ok")
	}

	if err := render.ObjectData(c, doneFrame{
		Type:           string(relaymodel.EventDone),
		Done:           true,
		Model:          t.model,
		ConversationId: t.conversationId,
	}); err != nil {
		lg.Debug("failed to write done frame", zap.Error(err))
	}
}

// CancelStream stops the caller's in-flight stream, if any.
func (r *Relay) CancelStream(c *gin.Context) {
	cancelled := false
	if key := middleware.UserKey(c); key != "" {
		cancelled = r.streams.cancel(key)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cancelled": cancelled})
}

// prepareTurn validates the request and assembles the upstream input.
// On rejection it has already responded and returns false.
func (r *Relay) prepareTurn(c *gin.Context, stream bool) (*turn, bool) {
	owner := middleware.UserKey(c)
	if owner == "" {
		middleware.AbortWithMessage(c, http.StatusUnauthorized, msgNotIdentified)
		return nil, false
	}

	// the body may carry a base64 image
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxUploadBytes()*2)
	var req chatRequest
	if !bindJSON(c, &req, false) {
		return nil, false
	}

	text := assembler.Sanitize(req.Message, config.MaxMessageLength)
	if text == "" {
		middleware.AbortWithMessage(c, http.StatusBadRequest, msgEmptyMessage)
		return nil, false
	}

	ctx := middleware.RequestContext(c)
	lg := gmw.GetLogger(c)
	t := &turn{owner: owner, premium: middleware.IsPremium(c), text: text}

	preferred, err := r.Preferences.GetModel(ctx, owner, string(catalog.TypeChat))
	if err != nil {
		lg.Warn("failed to load model preference", zap.Error(err))
	}
	t.model = r.Catalog.ChatModel(preferred, t.premium)

	history, err := r.resolveConversation(c, t, req.ConversationId)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return nil, false
	}

	if r.answerImageRequest(c, t, stream) {
		return nil, false
	}

	var imageURL string
	if req.Image != "" {
		if imageURL, err = normalizeInlineImage(req.Image); err != nil {
			lg.Debug("invalid inline image", zap.Error(err))
			middleware.AbortWithMessage(c, http.StatusBadRequest, msgInvalidImage)
			return nil, false
		}
	}

	var doc *assembler.Document
	pending, err := r.Documents.PendingDocument(ctx, owner, t.conversationId)
	if err != nil {
		lg.Warn("failed to load pending document", zap.Error(err))
	} else if pending != nil {
		doc = &assembler.Document{Filename: pending.Filename, FileType: pending.FileType, Content: pending.Content}
	}

	budget, limited := contextwindow.Budget(t.premium, r.Catalog.IsFreeModel(t.model))
	out := assembler.Assemble(assembler.Input{
		History:   history,
		Text:      text,
		ImageURL:  imageURL,
		Document:  doc,
		Budget:    budget,
		Limited:   limited,
		Estimator: r.estimator(),
	})
	if out.Stats.Dropped > 0 {
		monitor.RecordContextDropped(out.Stats.Dropped)
		lg.Debug("context window trimmed history",
			zap.Int("dropped", out.Stats.Dropped),
			zap.Int("kept", out.Stats.Kept),
			zap.Int("tokens", out.Stats.Tokens))
	}
	if out.DocumentInjected {
		t.documentId = pending.Id
	}

	webSearch := config.WebSearchEnabled
	if req.WebSearch != nil {
		webSearch = *req.WebSearch
	}
	t.pending = out.Pending
	t.input = upstream.ChatInput{
		Model:           t.model,
		Messages:        out.Upstream,
		WebSearch:       webSearch,
		HasImage:        out.HasImage,
		DocumentContext: out.DocumentContext,
	}
	return t, true
}

// resolveConversation loads the history of id, creating a new conversation
// when id is empty or unknown to the owner.
func (r *Relay) resolveConversation(c *gin.Context, t *turn, id string) ([]relaymodel.Message, error) {
	ctx := middleware.RequestContext(c)
	if id != "" {
		history, err := r.Conversations.GetMessages(ctx, t.owner, id)
		switch {
		case err == nil:
			t.conversationId = id
			return history, nil
		case !errors.Is(err, model.ErrConversationNotFound):
			return nil, errors.Wrap(err, "load conversation")
		}
		gmw.GetLogger(c).Info("conversation not found, starting a new one", zap.String("conversation_id", id))
	}

	newId, err := r.Conversations.CreateConversation(ctx, t.owner, "", maxConversations(t.premium))
	if err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	t.conversationId = newId
	return nil, nil
}

// answerImageRequest short-circuits turns asking for an image. The plain
// endpoint matches any keyword, the streaming one only known prefixes.
func (r *Relay) answerImageRequest(c *gin.Context, t *turn, stream bool) bool {
	if stream {
		if !t.premium || !assembler.HasImagePrefix(t.text) {
			return false
		}
	} else {
		if !assembler.IsImageRequest(t.text) {
			return false
		}
		if !t.premium {
			middleware.AbortWithMessage(c, http.StatusForbidden, msgImagePremium)
			return true
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"type":            "image_request",
		"prompt":          t.text,
		"conversation_id": t.conversationId,
	})
	return true
}

// persistTurn appends the turn in the background with a bounded retry.
func (r *Relay) persistTurn(c *gin.Context, t *turn, answer string) {
	msgs := append(slices.Clone(t.pending), relaymodel.NewTextMessage(relaymodel.RoleAssistant, answer))
	lg := gmw.GetLogger(c).With(zap.String("conversation_id", t.conversationId))

	graceful.GoCritical(middleware.RequestContext(c), "persist chat turn", func(ctx context.Context) {
		var err error
		for attempt := 1; attempt <= persistAttempts; attempt++ {
			if err = r.Conversations.AppendBatch(ctx, t.owner, t.conversationId, msgs); err == nil ||
				errors.Is(err, model.ErrConversationNotFound) {
				break
			}
			lg.Warn("persist chat turn failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			if attempt < persistAttempts {
				time.Sleep(time.Duration(attempt) * persistBackoff)
			}
		}
		if err != nil {
			monitor.RecordPersistenceFailure()
			lg.Error("failed to persist chat turn", zap.Int("messages", len(msgs)), zap.Error(err))
			return
		}

		if t.documentId != "" {
			if err = r.Documents.MarkInjected(ctx, t.owner, t.documentId, t.conversationId); err != nil {
				lg.Warn("failed to mark document injected", zap.Error(err))
			}
		}
		if _, err = r.Conversations.SetTitleIfDefault(ctx, t.owner, t.conversationId, t.text); err != nil {
			lg.Warn("failed to set conversation title", zap.Error(err))
		}
	})
}

// normalizeInlineImage decodes a base64 or data URL image and re-encodes it
// as a bounded JPEG data URL.
func normalizeInlineImage(raw string) (string, error) {
	if strings.HasPrefix(raw, "data:image/") {
		_, payload, ok := image.ParseDataURL(raw)
		if !ok {
			return "", image.ErrInvalidImage
		}
		raw = payload
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Wrap(err, "decode base64 image")
	}
	b64, err := image.EncodeJPEGBase64(data)
	if err != nil {
		return "", err
	}
	return image.JPEGDataURL(b64), nil
}
