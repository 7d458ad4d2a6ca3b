package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware answers preflight requests and sets the allow headers for
// listed origins. "*" in allowed admits any origin.
func CORSMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := false
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		match := matchOrigin(origin, allowed, allowAll)

		if match != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", match)
			if match != "*" {
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Origin,Content-Type,Accept,Authorization,X-Admin-Token")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func matchOrigin(origin string, allowed []string, allowAll bool) string {
	if allowAll {
		return "*"
	}
	if origin == "" {
		return ""
	}
	for _, a := range allowed {
		if strings.EqualFold(a, origin) {
			return origin
		}
	}
	return ""
}
