package validation

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize caps JSON request bodies at 1MB.
const MaxRequestSize = 1 << 20

// RequestSizeMiddleware fails body reads past maxSize bytes.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// AddressParamMiddleware answers 400 when the :address route parameter is
// not an Ethereum address once sanitized.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr := c.Param("address"); addr == "" || IsValidEthAddress(SanitizeAddress(addr)) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "address must be a valid Ethereum address (0x + 40 hex chars)",
		})
	}
}
