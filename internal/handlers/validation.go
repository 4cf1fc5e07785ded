package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/superapp/partnerauth/pkg/errors"
	"github.com/superapp/partnerauth/pkg/logger"
	"github.com/superapp/partnerauth/pkg/response"
	appValidator "github.com/superapp/partnerauth/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		rejectValidation(c, "invalid JSON payload")
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		rejectValidation(c, formatValidationError(err))
		return false
	}

	return true
}

func rejectValidation(c *gin.Context, message string) {
	logger.WithModule("http").Debug("request rejected",
		zap.String("path", c.Request.URL.Path),
		zap.String("reason", message),
	)
	response.Error(c, appErrors.NewValidation(message))
}

func formatValidationError(err error) string {
	var ve appValidator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		field := failure.Field
		switch failure.Tag {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "phone":
			messages = append(messages, fmt.Sprintf("%s must be a valid mobile number", field))
		case "otp_code":
			messages = append(messages, fmt.Sprintf("%s must be exactly 6 digits", field))
		default:
			if failure.Param != "" {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param))
			} else {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
			}
		}
	}
	return strings.Join(messages, "; ")
}
