package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS allows browser frontends on other origins to read the catalog and
// trigger updates. The API has no authenticated surface, so a wildcard
// origin is acceptable.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Recovery converts handler panics into 500 responses so one bad request
// cannot take the server down.
func Recovery() gin.HandlerFunc {
	return gin.Recovery()
}
