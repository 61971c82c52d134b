package api

import (
	"errors"

	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// respondError writes err with the status of its kind. Internal errors are
// attached to the context for the request logger and reported generically.
func respondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	message := "internal error"
	var e *domain.Error
	if kind == domain.KindInternal {
		_ = c.Error(err)
	} else if errors.As(err, &e) {
		message = e.Message
	}
	c.AbortWithStatusJSON(kind.HTTPStatus(), errorResponse{Error: errorBody{Kind: kind, Message: message}})
}
