package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the owner id asserted by the upstream auth proxy.
	HeaderUserID = "X-User-ID"

	// DefaultUserID owns requests that arrive without an identity.
	DefaultUserID = "demo-user"

	ctxKeyUserID = "userID"
	maxUserIDLen = 64
)

// Identity copies X-User-ID into the Gin context. Values longer than the
// record column are rejected with 400.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			if len(uid) > maxUserIDLen {
				abortError(c, http.StatusBadRequest, "bad_request", "X-User-ID too long")
				return
			}
			c.Set(ctxKeyUserID, uid)
		}
		c.Next()
	}
}

// UserID returns the owner id set by Identity, or DefaultUserID.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return DefaultUserID
}

// Preflight answers every OPTIONS request with 204 and no body. It must run
// after the CORS middleware so the response carries the CORS headers.
func Preflight() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
