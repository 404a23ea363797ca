package endpoint

import (
	"errors"

	"chorewalk/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeError maps err to its status; error carries the specific message, details the full chain.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)

	message := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		message = ae.Message
	}

	c.JSON(apperr.HTTPStatus(kind), ErrorResponse{
		Error:   message,
		Details: err.Error(),
	})
}
