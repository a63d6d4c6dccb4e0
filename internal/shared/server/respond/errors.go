package respond

import (
	"github.com/gin-gonic/gin"

	"resumate/internal/shared/telemetry"
)

// ErrorBody is the error object of every failed API call.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error logs and aborts with {error:{code,message,details}}. Client errors log
// at warn, server errors at error. The active project and peer code, when the
// handler recorded them, are attached to the log line.
func Error(c *gin.Context, status int, code, message string, details any) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"route":      c.FullPath(),
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	for _, key := range []string{"projectId", "peerCode"} {
		if v, ok := c.Get(key); ok {
			fields[key] = v
		}
	}
	if status >= 500 {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}
