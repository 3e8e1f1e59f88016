package middleware

import (
	"net/http"

	"freight-commission-ledger/pkg/apperror"
	"freight-commission-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// MaxBodySize caps request bodies at maxBytes. A declared Content-Length
// over the cap is refused up front; otherwise reads past the cap fail and
// the handler's bind error becomes a 413.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Error(c, apperror.ErrPayloadTooLarge())
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
