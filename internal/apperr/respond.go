package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Respond writes err as {"error": message, "code": code} with a status
// derived from its kind. Unclassified errors are reported as generic failures.
func Respond(c *gin.Context, err error) {
	status := HTTPStatus(err)
	body := gin.H{"error": err.Error()}

	var e *Error
	if errors.As(err, &e) {
		body["error"] = e.Message
		if e.Code != "" {
			body["code"] = e.Code
		}
	}
	if status == http.StatusInternalServerError {
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}
