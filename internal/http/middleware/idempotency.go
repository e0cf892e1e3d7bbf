// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on generation requests. When
// a lookup finds a live record for (user, key), the request is marked as a
// replay and the stored generation id is stashed for the handler, which then
// serves the saved record instead of calling the model again.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header that carries the client key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // string: generation id to replay
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// ReplayID returns the generation id stored for this request's key, if any.
func ReplayID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the generation id stored for (userID, key) if a
// live record exists, or "" otherwise. TTL is enforced by the lookup. Errors
// never block the request.
type IdempotencyLookup func(ctx context.Context, userID, key string, now time.Time) (generationID string, err error)

// IdempotencyValidator validates the Idempotency-Key header on POST requests
// and marks replays. Invalid keys are rejected with 400. Other methods pass
// through untouched.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortError(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			id, err := lookup(c.Request.Context(), UserID(c), key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Debug().Err(err).Msg("idempotency lookup failed")
			} else if id != "" {
				c.Set(ctxKeyIdemReplay, id)
			}
		}
		c.Next()
	}
}
