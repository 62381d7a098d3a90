package controller

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/one-chat/one-chat/middleware"
)

const msgInvalidBody = "Invalid request body"

// bindJSON decodes the body into obj. An empty body is accepted when
// optional is set. Failures are answered here and reported as false.
func bindJSON(c *gin.Context, obj any, optional bool) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	var tooLarge *http.MaxBytesError
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &tooLarge):
		middleware.AbortWithMessage(c, http.StatusRequestEntityTooLarge, "Payload too large")
	case errors.As(err, &verrs):
		middleware.AbortWithMessage(c, http.StatusBadRequest, validationMessage(verrs))
	default:
		middleware.AbortWithMessage(c, http.StatusBadRequest, msgInvalidBody)
	}
	return false
}

func validationMessage(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s is too long", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}
