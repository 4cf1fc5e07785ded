package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/superapp/partnerauth/pkg/errors"
)

// Failure is the body written for every failed request.
type Failure struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ack is the minimal success body for endpoints that return no data.
type Ack struct {
	Success bool `json:"success"`
}

// JSON writes a success payload as-is. Payload types carry their own success flag.
func JSON(c *gin.Context, statusCode int, payload any) {
	c.JSON(statusCode, payload)
}

// OK writes {"success": true}.
func OK(c *gin.Context) {
	c.JSON(http.StatusOK, Ack{Success: true})
}

// Error writes a JSON error response derived from an AppError. Internal causes are never exposed.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Failure{
		Success: false,
		Code:    appErr.Code,
		Message: appErr.Message,
	})
}
