package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func SuccessResponse(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, code int, message string, err error) {
	response := APIResponse{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	c.JSON(code, response)
}

// RetryableErrorResponse is used for upstream/rate-limit conditions where the
// client should retry after a delay.
func RetryableErrorResponse(c *gin.Context, code int, message string, retryAfterSeconds int, err error) {
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	ErrorResponse(c, code, message, err)
}
