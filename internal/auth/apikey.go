package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	headerName = "X-API-Key"
	// Browsers cannot set headers on websocket upgrades.
	queryName = "api_key"
)

// ParseKeys splits a comma-separated key list, so keys can be rotated
// without downtime.
func ParseKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// APIKeyMiddleware accepts requests carrying any of the configured keys in
// the X-API-Key header, or in the api_key query parameter on websocket
// upgrades. An empty key list disables authentication.
func APIKeyMiddleware(apiKeys string) gin.HandlerFunc {
	keys := ParseKeys(apiKeys)
	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Next()
			return
		}

		provided := c.GetHeader(headerName)
		if provided == "" && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			provided = c.Query(queryName)
		}
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}

		for _, k := range keys {
			if subtle.ConstantTimeCompare([]byte(provided), []byte(k)) == 1 {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "invalid API key",
		})
	}
}
