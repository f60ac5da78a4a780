package httpapi

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/mahaj/bizchat/pkg/apperr"
)

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// fail renders err with the status its kind maps to. Internal causes are
// logged here and never reach the client.
func fail(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"success": false, "error": apperr.PublicMessage(err)})
}
