package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are replaced by "[REDACTED]" in addition to Authorization,
	// Cookie, Set-Cookie, and Apikey. Matching is case-insensitive.
	MaskHeaders []string
	// MaxQuery caps the logged query length in bytes; <= 0 means 2048.
	MaxQuery int
}

var (
	// UUIDs go first so the phone pattern never eats their digit groups.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger attaches a request-scoped logger (request_id, user_id,
// method, route) for handlers and writes one access log line per request
// with scrubbed query and headers. Bodies are never logged, so prompts and
// generated markup stay out of access logs. Level follows the status:
// info, warn for 4xx, error for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maxQuery := opts.MaxQuery
	if maxQuery <= 0 {
		maxQuery = 2048
	}
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
		"apikey":        {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		rl := log.With().
			Str("request_id", c.GetString(requestIDKey)).
			Str("user_id", UserID(c)).
			Str("method", c.Request.Method).
			Str("route", route).
			Logger()
		c.Set(loggerKey, &rl)

		query := c.Request.URL.RawQuery
		if len(query) > maxQuery {
			query = query[:maxQuery] + "…"
		}
		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = redact(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		ev := rl.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = rl.Error()
		case status >= 400:
			ev = rl.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.
			Str("query", redact(query)).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
