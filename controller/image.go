package controller

import (
	"encoding/base64"
	"net/http"
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/middleware"
	"github.com/one-chat/one-chat/monitor"
	"github.com/one-chat/one-chat/relay/catalog"
)

type generateImageRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

type editImageRequest struct {
	Prompt string `json:"prompt"`
	// Image is base64, optionally behind a data URL prefix.
	Image string `json:"image"`
	Model string `json:"model"`
}

func dataURI(data []byte) string {
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (r *Relay) GenerateImage(c *gin.Context) {
	if !middleware.IsPremium(c) {
		middleware.AbortWithMessage(c, http.StatusForbidden, msgImagePremium)
		return
	}
	var req generateImageRequest
	if !bindJSON(c, &req, false) {
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		middleware.AbortWithMessage(c, http.StatusBadRequest, "Prompt cannot be empty")
		return
	}

	ctx := middleware.RequestContext(c)
	lg := gmw.GetLogger(c)
	preferred, err := r.Preferences.GetModel(ctx, middleware.UserKey(c), string(catalog.TypeImage))
	if err != nil {
		lg.Warn("failed to load image model preference", zap.Error(err))
	}
	modelName := r.Catalog.ImageModel(req.Model, preferred)

	res, err := r.Engine.GenerateImage(ctx, modelName, prompt)
	if err != nil {
		monitor.RecordRelayRequest("generate_image", modelName, "error")
		lg.Error("image generation failed", zap.String("model", modelName), zap.Error(err))
		middleware.AbortWithMessage(c, http.StatusInternalServerError, "Failed to generate image")
		return
	}
	monitor.RecordRelayRequest("generate_image", modelName, "ok")

	var inline any
	if len(res.Data) > 0 {
		inline = dataURI(res.Data)
	}
	c.JSON(http.StatusOK, gin.H{
		"type":      "image",
		"image":     inline,
		"image_url": res.URL,
		"model":     modelName,
	})
}

func (r *Relay) EditImage(c *gin.Context) {
	if !middleware.IsPremium(c) {
		middleware.AbortWithMessage(c, http.StatusForbidden, "Image editing is only available for premium users.")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxUploadBytes()*2)
	var req editImageRequest
	if !bindJSON(c, &req, false) {
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" || req.Image == "" {
		middleware.AbortWithMessage(c, http.StatusBadRequest, "Prompt and image are required")
		return
	}

	raw := req.Image
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[i+1:]
	}
	src, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil || len(src) == 0 {
		middleware.AbortWithMessage(c, http.StatusBadRequest, msgInvalidImage)
		return
	}

	lg := gmw.GetLogger(c)
	modelName := r.Catalog.ImageEditModel(req.Model, "")
	out, err := r.Engine.EditImage(middleware.RequestContext(c), modelName, src, prompt)
	if err != nil {
		monitor.RecordRelayRequest("edit_image", modelName, "error")
		lg.Error("image edit failed", zap.String("model", modelName), zap.Error(err))
		middleware.AbortWithMessage(c, http.StatusInternalServerError, "Failed to edit image")
		return
	}
	monitor.RecordRelayRequest("edit_image", modelName, "ok")

	c.JSON(http.StatusOK, gin.H{
		"type":  "image",
		"image": dataURI(out),
		"model": modelName,
	})
}
