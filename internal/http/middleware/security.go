package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// apiCSP forbids a browser from rendering or executing anything served by
// the API. Generated markup travels inside JSON and must never be treated as
// a page of this origin.
const apiCSP = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests only.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days when <= 0.
	HSTSMaxAge time.Duration
	// NoStore adds Cache-Control: no-store. Leave off when clients rely on
	// ETag revalidation of the history list.
	NoStore bool
	// HTMLPrefixes are path prefixes that serve real pages (the Swagger UI)
	// and therefore skip the API content security policy.
	HTMLPrefixes []string
}

// SecurityHeaders attaches hardening headers to every response and exposes
// X-Request-ID to browser clients.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int64(opt.HSTSMaxAge / time.Second)
	if maxAge <= 0 {
		maxAge = int64(180 * 24 * time.Hour / time.Second)
	}
	hsts := "max-age=" + strconv.FormatInt(maxAge, 10) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
		h.Set("Cross-Origin-Resource-Policy", "cross-origin")

		if !hasAnyPrefix(c.Request.URL.Path, opt.HTMLPrefixes) {
			h.Set("Content-Security-Policy", apiCSP)
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		const expose = "Access-Control-Expose-Headers"
		switch cur := h.Get(expose); {
		case cur == "":
			h.Set(expose, requestIDHeader)
		case !strings.Contains(cur, requestIDHeader):
			h.Set(expose, cur+", "+requestIDHeader)
		}

		c.Next()
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// isHTTPS reports whether the request arrived over TLS, directly or through
// a proxy that set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
