package server

import (
	"github.com/gin-gonic/gin"
)

// apiError is the error half of the response envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// envelope is the uniform response shape. Every reply carries the
// request id so a client report can be matched to the server logs.
type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	RequestID string    `json:"requestId"`
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString("request_id")
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{
		Success:   true,
		Data:      data,
		RequestID: requestIDFrom(c),
	})
}

func respondError(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, envelope{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
			Details: details,
		},
		RequestID: requestIDFrom(c),
	})
}
