package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heidian/pingxx-gateway/apierr"
)

// fail renders err using apierr's Kind→status mapping when err is an
// *apierr.Error, falling back to 500 for anything else.
func fail(c *gin.Context, err error) {
	if apiErr, ok := apierr.As(err); ok {
		c.JSON(apiErr.Status(), gin.H{"error": apiErr.Message, "kind": apiErr.Kind})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, format string, args ...interface{}) {
	fail(c, apierr.New(apierr.MalformedRequest, format, args...))
}
