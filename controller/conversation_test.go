package controller

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/one-chat/one-chat/model"
	relaymodel "github.com/one-chat/one-chat/relay/model"
)

func TestConversationLifecycle(t *testing.T) {
	h := newHarness(t)

	rec := h.do(premiumUser, http.MethodPost, "/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	convID := decode(t, rec)["conversation_id"].(string)
	require.NotEmpty(t, convID)

	rec = h.do(premiumUser, http.MethodPost, "/conversations/"+convID+"/message", gin.H{"message": "first question"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(premiumUser, http.MethodPost, "/conversations/"+convID+"/message",
		gin.H{"message": "first answer", "role": "assistant"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(premiumUser, http.MethodGet, "/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["conversations"].([]any)
	require.Len(t, list, 1)
	summary := list[0].(map[string]any)
	require.Equal(t, convID, summary["conversation_id"])
	require.Equal(t, "first question", summary["title"])

	rec = h.do(premiumUser, http.MethodGet, "/conversations/"+convID, nil)
	msgs := decode(t, rec)["messages"].([]any)
	require.Len(t, msgs, 2)
	require.Equal(t, "assistant", msgs[1].(map[string]any)["role"])

	// history defaults to the latest conversation
	rec = h.do(premiumUser, http.MethodGet, "/history", nil)
	body := decode(t, rec)
	require.Equal(t, convID, body["conversation_id"])
	require.Len(t, body["history"], 2)

	// another owner sees nothing and cannot delete
	rec = h.do(freeUser, http.MethodGet, "/conversations/"+convID, nil)
	require.Empty(t, decode(t, rec)["messages"])
	rec = h.do(freeUser, http.MethodDelete, "/conversations/"+convID, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Failed to delete conversation or unauthorized", errorOf(t, rec))

	rec = h.do(premiumUser, http.MethodDelete, "/conversations/"+convID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decode(t, rec)["success"])

	rec = h.do(premiumUser, http.MethodGet, "/history", nil)
	body = decode(t, rec)
	require.Nil(t, body["conversation_id"])
	require.Empty(t, body["history"])
}

func TestCreateConversationValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(anonymous, http.MethodPost, "/conversations", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "User not identified. Please reload the page.", errorOf(t, rec))

	rec = h.do(freeUser, http.MethodPost, "/conversations", gin.H{"title": strings.Repeat("x", 201)})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Title is too long", errorOf(t, rec))

	rec = h.do(freeUser, http.MethodPost, "/conversations", gin.H{"title": "Trip notes"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateConversationEvictsOldest(t *testing.T) {
	h := newHarness(t)

	var ids []string
	for range 3 {
		rec := h.do(freeUser, http.MethodPost, "/conversations", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		ids = append(ids, decode(t, rec)["conversation_id"].(string))
	}

	list, err := h.store.ListConversations(context.Background(), freeUser.key)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, s := range list {
		require.NotEqual(t, ids[0], s.ConversationId)
	}
}

func TestAddMessageErrors(t *testing.T) {
	h := newHarness(t)
	id, err := h.store.CreateConversation(context.Background(), freeUser.key, "", 0)
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		body   any
		status int
		msg    string
	}{
		{"empty", "/conversations/" + id + "/message", gin.H{"message": "  "}, http.StatusBadRequest, msgEmptyMessage},
		{"role", "/conversations/" + id + "/message", gin.H{"message": "x", "role": "tool"},
			http.StatusBadRequest, "Role must be one of: system user assistant"},
		{"missing", "/conversations/nope/message", gin.H{"message": "x"}, http.StatusNotFound, "Conversation not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(freeUser, http.MethodPost, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.msg, errorOf(t, rec))
		})
	}
}

func TestClearContextDeletesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for range 2 {
		_, err := h.store.CreateConversation(ctx, premiumUser.key, "", 0)
		require.NoError(t, err)
	}

	rec := h.do(premiumUser, http.MethodPost, "/clear_context", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list, err := h.store.ListConversations(ctx, premiumUser.key)
	require.NoError(t, err)
	require.Empty(t, list)

	rec = h.do(anonymous, http.MethodPost, "/clear_context", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClearDocumentRecordsNotice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, err := h.store.CreateConversation(ctx, premiumUser.key, "", 0)
	require.NoError(t, err)
	require.NoError(t, h.store.SetDocument(ctx, premiumUser.key, &model.UploadedDocument{
		Filename: "a.pdf", FileType: "pdf", Content: "text",
	}))

	rec := h.do(premiumUser, http.MethodPost, "/clear_document", gin.H{"conversation_id": id})
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := h.store.GetDocument(ctx, premiumUser.key)
	require.NoError(t, err)
	require.Nil(t, doc)

	msgs, err := h.store.GetMessages(ctx, premiumUser.key, id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, relaymodel.KindNotice, msgs[0].Kind)
	require.Equal(t, relaymodel.RoleSystem, msgs[0].Role)

	// without a conversation only the document goes
	rec = h.do(premiumUser, http.MethodPost, "/clear_document", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
