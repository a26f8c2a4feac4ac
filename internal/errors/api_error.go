package errors

import (
	"github.com/gin-gonic/gin"
	"github.com/prakashnk/trafficalert/internal/logger"
)

// APIError represents a simple standardized error response.
type APIError struct {
	Error     string                 `json:"error"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(message string, details map[string]interface{}) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}

// newRequestError attaches the request ID of c, when known, to the error body.
func newRequestError(c *gin.Context, message string, details map[string]interface{}) *APIError {
	apiErr := NewAPIError(message, details)
	if c.Request != nil {
		apiErr.RequestID = logger.RequestIDFromContext(c.Request.Context())
	}
	return apiErr
}
