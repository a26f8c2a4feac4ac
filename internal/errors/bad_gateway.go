package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AbortWithBadGateway sends a 502 Bad Gateway response and aborts the request.
// Used when an upstream provider failed or returned an unusable answer.
func AbortWithBadGateway(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusBadGateway, newRequestError(c, message, details))
}
