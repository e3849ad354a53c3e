package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response represents a standard API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Kind   string `json:"error_kind"`
	Detail string `json:"detail"`
}

// Success sends a successful response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// Error sends an error response with the given status and error kind.
func Error(c *gin.Context, statusCode int, kind, detail string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorInfo{
			Kind:   kind,
			Detail: detail,
		},
	})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, detail string) {
	Error(c, http.StatusBadRequest, "ERR_BAD_REQUEST", detail)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context, detail string) {
	Error(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", detail)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context, detail string) {
	Error(c, http.StatusNotFound, "ERR_NOT_FOUND", detail)
}

// InternalError sends a 500 error response.
func InternalError(c *gin.Context, kind, detail string) {
	Error(c, http.StatusInternalServerError, kind, detail)
}
