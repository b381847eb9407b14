package api

import "github.com/gin-gonic/gin"

// securityHeaders adds standard HTTP security headers to every response.
// These mitigate clickjacking, MIME-sniffing, XSS reflection, and
// information leakage. Kept close to verbatim from the teacher's
// internal/radio.SecurityHeadersMiddleware — pure ambient hardening,
// unrelated to the command surface it now fronts.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Header("Content-Security-Policy",
			"default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; media-src 'self'; connect-src 'self'; font-src 'self'")
		c.Next()
	}
}
