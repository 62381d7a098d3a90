package controller

import (
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/one-chat/one-chat/dto"
	"github.com/one-chat/one-chat/middleware"
	"github.com/one-chat/one-chat/model"
	relaymodel "github.com/one-chat/one-chat/relay/model"
)

type createConversationRequest struct {
	Title string `json:"title" binding:"max=200"`
}

type addMessageRequest struct {
	Message string `json:"message"`
	Role    string `json:"role" binding:"omitempty,oneof=system user assistant"`
}

func toHistory(msgs []relaymodel.Message) []dto.HistoryMessage {
	out := make([]dto.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, dto.HistoryMessage{
			Role:    string(m.Role),
			Content: m.StringContent(),
			Kind:    string(m.Kind),
		})
	}
	return out
}

// ListConversations never fails; an unavailable store yields an empty list.
func (r *Relay) ListConversations(c *gin.Context) {
	list := []dto.ConversationSummary{}
	if owner := middleware.UserKey(c); owner != "" {
		got, err := r.Conversations.ListConversations(middleware.RequestContext(c), owner)
		if err != nil {
			gmw.GetLogger(c).Error("failed to list conversations", zap.Error(err))
		} else if got != nil {
			list = got
		}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

func (r *Relay) CreateConversation(c *gin.Context) {
	owner := middleware.UserKey(c)
	if owner == "" {
		middleware.AbortWithMessage(c, http.StatusBadRequest, "User not identified. Please reload the page.")
		return
	}
	var req createConversationRequest
	if !bindJSON(c, &req, true) {
		return
	}

	id, err := r.Conversations.CreateConversation(middleware.RequestContext(c), owner,
		req.Title, maxConversations(middleware.IsPremium(c)))
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id})
}

func (r *Relay) GetConversation(c *gin.Context) {
	id := c.Param("id")
	msgs, err := r.Conversations.GetMessages(middleware.RequestContext(c), middleware.UserKey(c), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"messages": toHistory(msgs)})
	case errors.Is(err, model.ErrConversationNotFound):
		c.JSON(http.StatusOK, gin.H{"messages": []dto.HistoryMessage{}})
	default:
		gmw.GetLogger(c).Error("failed to load conversation", zap.String("conversation_id", id), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"messages": []dto.HistoryMessage{}, "error": "Unable to load conversation"})
	}
}

// AddMessage appends a message directly; a user message may set the title.
func (r *Relay) AddMessage(c *gin.Context) {
	var req addMessageRequest
	if !bindJSON(c, &req, false) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		middleware.AbortWithMessage(c, http.StatusBadRequest, msgEmptyMessage)
		return
	}
	role := relaymodel.RoleUser
	if req.Role != "" {
		role = relaymodel.Role(req.Role)
	}

	ctx := middleware.RequestContext(c)
	owner, id := middleware.UserKey(c), c.Param("id")
	err := r.Conversations.Append(ctx, owner, id, relaymodel.NewTextMessage(role, req.Message))
	switch {
	case errors.Is(err, model.ErrConversationNotFound):
		middleware.AbortWithMessage(c, http.StatusNotFound, "Conversation not found")
		return
	case errors.Is(err, model.ErrInvalidRole):
		middleware.AbortWithMessage(c, http.StatusBadRequest, "Invalid role")
		return
	case err != nil:
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}

	if role == relaymodel.RoleUser {
		if _, err = r.Conversations.SetTitleIfDefault(ctx, owner, id, req.Message); err != nil {
			gmw.GetLogger(c).Warn("unable to set conversation title", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (r *Relay) DeleteConversation(c *gin.Context) {
	owner := middleware.UserKey(c)
	if owner == "" {
		middleware.AbortWithMessage(c, http.StatusBadRequest, "User not identified.")
		return
	}

	deleted, err := r.Conversations.DeleteConversation(middleware.RequestContext(c), owner, c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		middleware.AbortWithMessage(c, http.StatusForbidden, "Failed to delete conversation or unauthorized")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// History returns a conversation's messages, defaulting to the latest one.
func (r *Relay) History(c *gin.Context) {
	ctx := middleware.RequestContext(c)
	owner := middleware.UserKey(c)
	id := c.Query("conversation_id")

	fail := func(err error) {
		gmw.GetLogger(c).Error("failed to load history", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"history": []dto.HistoryMessage{}, "conversation_id": nil, "error": "Unable to load history"})
	}

	if id == "" && owner != "" {
		latest, err := r.Conversations.LatestConversationID(ctx, owner)
		if err != nil {
			fail(err)
			return
		}
		id = latest
	}
	if id == "" {
		c.JSON(http.StatusOK, gin.H{"history": []dto.HistoryMessage{}, "conversation_id": nil})
		return
	}

	msgs, err := r.Conversations.GetMessages(ctx, owner, id)
	if err != nil && !errors.Is(err, model.ErrConversationNotFound) {
		fail(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": toHistory(msgs), "conversation_id": id})
}

// ClearContext deletes every conversation of the caller.
func (r *Relay) ClearContext(c *gin.Context) {
	owner := middleware.UserKey(c)
	if owner == "" {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	n, err := r.Conversations.DeleteAll(middleware.RequestContext(c), owner)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	gmw.GetLogger(c).Info("cleared conversations", zap.Int("count", n))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
