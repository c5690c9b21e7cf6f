package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khoahotran/pulse-media/pkg/apperror"
)

// Me echoes the principal decoded from the caller's token.
func Me(c *gin.Context) {
	p, ok := GetPrincipal(c)
	if !ok {
		c.Error(apperror.NewUnauthorized("principal not found in context", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": p.ID, "role": p.Role})
}
