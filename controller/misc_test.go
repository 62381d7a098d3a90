package controller

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/one-chat/one-chat/relay/catalog"
)

func TestIndexReportsTierAndModels(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SetModel(context.Background(), premiumUser.key, string(catalog.TypeImage), "img-2"))

	body := decode(t, h.do(freeUser, http.MethodGet, "/", nil))
	require.Equal(t, false, body["premium"])
	require.Equal(t, "free-1", body["current_model"])
	require.Equal(t, "img-1", body["current_image_model"])
	require.Len(t, body["chat_models"], 2)
	require.Len(t, body["image_models"], 2)

	body = decode(t, h.do(premiumUser, http.MethodGet, "/", nil))
	require.Equal(t, true, body["premium"])
	require.Equal(t, "prem-1", body["current_model"])
	require.Equal(t, "img-2", body["current_image_model"])
}

func TestValidateCode(t *testing.T) {
	h := newHarness(t)

	rec := h.do(anonymous, http.MethodPost, "/validate_code", gin.H{"code": " " + testCode + " "})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decode(t, rec)["valid"])
	require.NotEmpty(t, rec.Header().Get("Set-Cookie"))

	rec = h.do(anonymous, http.MethodPost, "/validate_code", gin.H{"code": "guess"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, false, decode(t, rec)["valid"])

	rec = h.do(anonymous, http.MethodPost, "/validate_code", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSetModelTierRules(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name   string
		who    caller
		body   gin.H
		status int
		msg    string
	}{
		{"anonymous", anonymous, gin.H{"model": "free-1"}, http.StatusUnauthorized, msgNotIdentified},
		{"unknown type", freeUser, gin.H{"model": "free-1", "model_type": "audio"}, http.StatusBadRequest, catalog.ErrUnknownModelType.Error()},
		{"free premium chat", freeUser, gin.H{"model": "prem-1"}, http.StatusForbidden, catalog.ErrPremiumChatModel.Error()},
		{"free empty chat", freeUser, gin.H{"model": ""}, http.StatusForbidden, catalog.ErrPremiumChatModel.Error()},
		{"free image", freeUser, gin.H{"model": "img-1", "model_type": "image"}, http.StatusForbidden, catalog.ErrPremiumImageModel.Error()},
		{"premium empty", premiumUser, gin.H{"model": " ", "model_type": "chat"}, http.StatusBadRequest, catalog.ErrEmptyModel.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(tc.who, http.MethodPost, "/set_model", tc.body)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.msg, errorOf(t, rec))
		})
	}

	rec := h.do(premiumUser, http.MethodPost, "/set_model", gin.H{"model": "img-2", "model_type": "IMAGE"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "image", body["model_type"])

	got, err := h.store.GetModel(context.Background(), premiumUser.key, "image")
	require.NoError(t, err)
	require.Equal(t, "img-2", got)

	rec = h.do(freeUser, http.MethodPost, "/set_model", gin.H{"model": "free-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "free-1", decode(t, h.do(freeUser, http.MethodGet, "/", nil))["current_model"])
}

func multipartRequest(t *testing.T, path, field, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadImage(t *testing.T) {
	h := newHarness(t)
	img := pngBytes(t, 16, 12)

	rec := h.send(freeUser, multipartRequest(t, "/upload_image", "image", "pic.png", img))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.send(premiumUser, multipartRequest(t, "/upload_image", "", "", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "No image file provided", errorOf(t, rec))

	rec = h.send(premiumUser, multipartRequest(t, "/upload_image", "image", "notes.txt", img))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, errorOf(t, rec), "Only image files are allowed")

	rec = h.send(premiumUser, multipartRequest(t, "/upload_image", "image", "broken.png", []byte("not an image")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid image file. Please upload a valid image.", errorOf(t, rec))

	rec = h.send(premiumUser, multipartRequest(t, "/upload_image", "image", "pic.png", img))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, true, body["success"])
	require.True(t, strings.HasPrefix(body["image"].(string), "data:image/jpeg;base64,"))
}

func docxFile(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestUploadDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	convID, err := h.store.CreateConversation(ctx, premiumUser.key, "", 0)
	require.NoError(t, err)
	file := docxFile(t, "Quarterly revenue grew")

	rec := h.send(freeUser, multipartRequest(t, "/upload_document", "document", "report.docx", file))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.send(premiumUser, multipartRequest(t, "/upload_document", "document", "report.doc", file))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, errorOf(t, rec), "convert .doc files")

	rec = h.send(premiumUser, multipartRequest(t, "/upload_document", "document", "notes.txt", file))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, errorOf(t, rec), "Unsupported file type")

	rec = h.send(premiumUser, multipartRequest(t, "/upload_document?conversation_id="+convID, "document", "report.docx", file))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "report.docx", body["filename"])
	require.Equal(t, "docx", body["file_type"])
	require.Equal(t, false, body["truncated"])

	doc, err := h.store.GetDocument(ctx, premiumUser.key)
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Contains(t, doc.Content, "Quarterly revenue grew")

	list, err := h.store.ListConversations(ctx, premiumUser.key)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "report", list[0].Title)
}

func TestGenerateImage(t *testing.T) {
	h := newHarness(t)

	rec := h.do(freeUser, http.MethodPost, "/generate_image", gin.H{"prompt": "a fox"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, msgImagePremium, errorOf(t, rec))

	rec = h.do(premiumUser, http.MethodPost, "/generate_image", gin.H{"prompt": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, h.store.SetModel(context.Background(), premiumUser.key, "image", "img-2"))
	rec = h.do(premiumUser, http.MethodPost, "/generate_image", gin.H{"prompt": "a fox"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "image", body["type"])
	require.Equal(t, "img-2", body["model"])
	require.Equal(t, h.up.imageURL, body["image_url"])
	require.True(t, strings.HasPrefix(body["image"].(string), "data:image/png;base64,"))

	rec = h.do(premiumUser, http.MethodPost, "/generate_image", gin.H{"prompt": "a fox", "model": "img-1"})
	require.Equal(t, "img-1", decode(t, rec)["model"])
}

func TestEditImage(t *testing.T) {
	h := newHarness(t)
	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 4, 4))

	rec := h.do(freeUser, http.MethodPost, "/edit_image", gin.H{"prompt": "add a hat", "image": src})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(premiumUser, http.MethodPost, "/edit_image", gin.H{"prompt": "add a hat"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Prompt and image are required", errorOf(t, rec))

	rec = h.do(premiumUser, http.MethodPost, "/edit_image", gin.H{"prompt": "add a hat", "image": "%%%"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, msgInvalidImage, errorOf(t, rec))

	rec = h.do(premiumUser, http.MethodPost, "/edit_image", gin.H{"prompt": "add a hat", "image": src})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "edit-1", body["model"])
	require.True(t, strings.HasPrefix(body["image"].(string), "data:image/png;base64,"))
}
