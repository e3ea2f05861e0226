package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chefassist/internal/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope is the body of every non-2xx JSON response.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes the error envelope. Only *apierr.Error text reaches the
// caller; anything else becomes a generic internal error.
func RespondError(c *gin.Context, err error) {
	if e, ok := apierr.As(err); ok {
		c.JSON(e.Status, ErrorEnvelope{Error: APIError{Message: e.Error(), Code: e.Code}})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorEnvelope{Error: APIError{Message: "internal error", Code: "internal"}})
}
