package controller

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/common/document"
	"github.com/one-chat/one-chat/common/image"
	"github.com/one-chat/one-chat/middleware"
	"github.com/one-chat/one-chat/model"
	"github.com/one-chat/one-chat/relay/assembler"
)

// ConversationHintHeader names the conversation whose title may follow an uploaded document.
const ConversationHintHeader = "X-Conversation-Id"

// formFile fetches a multipart file, answering missing or unnamed uploads.
func formFile(c *gin.Context, field, kind string) (*multipart.FileHeader, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.AbortWithMessage(c, http.StatusRequestEntityTooLarge, "Payload too large")
			return nil, false
		}
		middleware.AbortWithMessage(c, http.StatusBadRequest, fmt.Sprintf("No %s file provided", kind))
		return nil, false
	}
	if strings.TrimSpace(fh.Filename) == "" {
		middleware.AbortWithMessage(c, http.StatusBadRequest, fmt.Sprintf("No %s file selected", kind))
		return nil, false
	}
	return fh, true
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open upload %s", fh.Filename)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, config.MaxUploadBytes()+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read upload %s", fh.Filename)
	}
	return data, nil
}

// UploadImage normalizes an image for attaching to the next chat turn.
func (r *Relay) UploadImage(c *gin.Context) {
	if !middleware.IsPremium(c) {
		middleware.AbortWithMessage(c, http.StatusForbidden, "Image upload is only available for premium users.")
		return
	}
	fh, ok := formFile(c, "image", "image")
	if !ok {
		return
	}
	if !image.AllowedExtension(fh.Filename) {
		middleware.AbortWithMessage(c, http.StatusBadRequest,
			"Only image files are allowed. Please upload a JPEG, PNG, GIF, WebP, or BMP file.")
		return
	}
	if fh.Size > config.MaxUploadBytes() {
		middleware.AbortWithMessage(c, http.StatusBadRequest,
			fmt.Sprintf("File size too large. Please upload an image smaller than %dMB.", config.MaxUploadSizeMB))
		return
	}

	data, err := readFormFile(fh)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	b64, err := image.EncodeJPEGBase64(data)
	if err != nil {
		gmw.GetLogger(c).Warn("image processing failed", zap.String("filename", fh.Filename), zap.Error(err))
		middleware.AbortWithMessage(c, http.StatusBadRequest, "Invalid image file. Please upload a valid image.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "image": image.JPEGDataURL(b64)})
}

// UploadDocument extracts a document and makes it the caller's pending document.
func (r *Relay) UploadDocument(c *gin.Context) {
	if !middleware.IsPremium(c) {
		middleware.AbortWithMessage(c, http.StatusForbidden, "Document upload is only available for premium users.")
		return
	}
	fh, ok := formFile(c, "document", "document")
	if !ok {
		return
	}
	if err := document.Validate(fh.Filename, fh.Size); err != nil {
		middleware.AbortWithMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	data, err := readFormFile(fh)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	extracted, err := document.Extract(data, fh.Filename)
	if err != nil {
		gmw.GetLogger(c).Warn("document extraction failed", zap.String("filename", fh.Filename), zap.Error(err))
		middleware.AbortWithMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	doc := new(model.UploadedDocument)
	if err = copier.Copy(doc, extracted); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, errors.Wrap(err, "copy document"))
		return
	}

	ctx := middleware.RequestContext(c)
	owner := middleware.UserKey(c)
	if err = r.Documents.SetDocument(ctx, owner, doc); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}

	hint := c.Query("conversation_id")
	if hint == "" {
		hint = c.GetHeader(ConversationHintHeader)
	}
	if hint != "" {
		title := strings.TrimSuffix(doc.Filename, filepath.Ext(doc.Filename))
		if _, err = r.Conversations.SetTitleIfDefault(ctx, owner, hint, title); err != nil {
			gmw.GetLogger(c).Debug("unable to title conversation from document", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"filename":  doc.Filename,
		"file_type": doc.FileType,
		"truncated": doc.Truncated,
		"message": fmt.Sprintf("Document \"%s\" uploaded and processed successfully! "+
			"You can ask multiple questions about its content. "+
			"Click the green indicator to remove the document when done.", doc.Filename),
	})
}

type clearDocumentRequest struct {
	ConversationId string `json:"conversation_id"`
}

// ClearDocument drops the pending document and tells the given conversation to ignore it.
func (r *Relay) ClearDocument(c *gin.Context) {
	var req clearDocumentRequest
	if !bindJSON(c, &req, true) {
		return
	}

	ctx := middleware.RequestContext(c)
	owner := middleware.UserKey(c)
	if owner == "" {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	if req.ConversationId != "" {
		if err := r.Conversations.Append(ctx, owner, req.ConversationId, assembler.NoticeMessage()); err != nil {
			gmw.GetLogger(c).Warn("failed to record document removal", zap.Error(err))
		}
	}
	if _, err := r.Documents.ClearDocument(ctx, owner); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
