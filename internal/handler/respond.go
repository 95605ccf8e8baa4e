package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"renobroker/internal/apperr"
)

// respondError maps a domain error to its HTTP status and a stable JSON
// shape. Anything that is not a domain error becomes an opaque 500.
func respondError(c *gin.Context, err error) {
	if appErr := apperr.From(err); appErr != nil {
		c.JSON(appErr.Status, gin.H{
			"code":  appErr.Code,
			"error": appErr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":  apperr.CodeInternal,
		"error": "internal error",
	})
}

// currentUser reads the identity placed in the context by the auth
// middleware.
func currentUser(c *gin.Context) (userID, role string) {
	if v, ok := c.Get("user_id"); ok {
		userID, _ = v.(string)
	}
	if v, ok := c.Get("role"); ok {
		role, _ = v.(string)
	}
	return userID, role
}
