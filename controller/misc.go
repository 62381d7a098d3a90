package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/one-chat/one-chat/common/ctxkey"
	"github.com/one-chat/one-chat/middleware"
	"github.com/one-chat/one-chat/relay/catalog"
)

// Index reports what the front-end needs to render: model lists, the
// selected models and the caller's tier.
func (r *Relay) Index(c *gin.Context) {
	ctx := middleware.RequestContext(c)
	owner := middleware.UserKey(c)
	premium := middleware.IsPremium(c)

	var chatPref, imagePref string
	if owner != "" {
		var err error
		if chatPref, err = r.Preferences.GetModel(ctx, owner, string(catalog.TypeChat)); err != nil {
			gmw.GetLogger(c).Warn("failed to load chat model preference", zap.Error(err))
		}
		if imagePref, err = r.Preferences.GetModel(ctx, owner, string(catalog.TypeImage)); err != nil {
			gmw.GetLogger(c).Warn("failed to load image model preference", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"chat_models":         r.Catalog.ChatModels(),
		"image_models":        r.Catalog.ImageModels(),
		"current_model":       r.Catalog.ChatModel(chatPref, premium),
		"current_image_model": r.Catalog.ImageModel("", imagePref),
		"premium":             premium,
	})
}

type validateCodeRequest struct {
	Code string `json:"code"`
}

// ValidateCode redeems a premium code into the session, or clears it.
func (r *Relay) ValidateCode(c *gin.Context) {
	var req validateCodeRequest
	if !bindJSON(c, &req, true) {
		return
	}

	session := sessions.Default(c)
	hash, ok := r.Access.Validate(req.Code)
	if ok {
		session.Set(ctxkey.PremiumCodeHash, hash)
	} else {
		session.Delete(ctxkey.PremiumCodeHash)
	}
	if err := session.Save(); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}

	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"valid": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

type setModelRequest struct {
	Model     string `json:"model"`
	ModelType string `json:"model_type"`
}

// SetModel stores the caller's model choice after the tier checks.
func (r *Relay) SetModel(c *gin.Context) {
	var req setModelRequest
	if !bindJSON(c, &req, false) {
		return
	}
	owner := middleware.UserKey(c)
	if owner == "" {
		middleware.AbortWithMessage(c, http.StatusUnauthorized, msgNotIdentified)
		return
	}

	mt, err := catalog.ParseModelType(req.ModelType)
	if err != nil {
		middleware.AbortWithMessage(c, http.StatusBadRequest, catalog.ErrUnknownModelType.Error())
		return
	}
	if err = r.Catalog.ValidateSelection(mt, req.Model, middleware.IsPremium(c)); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, catalog.ErrEmptyModel) {
			status = http.StatusBadRequest
		}
		middleware.AbortWithMessage(c, status, err.Error())
		return
	}

	if err = r.Preferences.SetModel(middleware.RequestContext(c), owner, string(mt), req.Model); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "model": req.Model, "model_type": string(mt)})
}
