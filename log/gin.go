package log

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKeyHijacked marks a connection as hijacked in Gin's context.
// WebSocket handlers set it before upgrading so middleware stops touching
// the response writer.
const ContextKeyHijacked = "connection_hijacked"

// MarkHijacked marks the connection as hijacked in Gin's context.
// Call this in WebSocket handlers before websocket.Accept().
// net/http has no Hijacked() accessor (golang/go#16456), so handlers have
// to tell the middleware themselves.
func MarkHijacked(c *gin.Context) {
	c.Set(ContextKeyHijacked, true)
}

// IsHijacked checks if the connection has been marked as hijacked.
func IsHijacked(c *gin.Context) bool {
	hijacked, exists := c.Get(ContextKeyHijacked)
	return exists && hijacked.(bool)
}

// GinLogger returns a Gin middleware that logs requests using zerolog
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		// Touching c.Writer after a WebSocket upgrade triggers
		// "http: response.WriteHeader on hijacked connection".
		if IsHijacked(c) {
			return
		}

		status := c.Writer.Status()
		if query != "" {
			path = path + "?" + query
		}

		event := Info()
		if status >= 500 {
			event = Error()
		} else if status >= 400 {
			event = Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP())

		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			event.Str("error", errs)
		}

		event.Msg("request")
	}
}
