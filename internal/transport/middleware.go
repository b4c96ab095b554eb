package transport

import (
	"time"

	"github.com/gin-gonic/gin"

	"eni-go/internal/eni"
)

// documentPath labels every ENI document in logs and metrics; clients post
// to arbitrary paths.
const documentPath = "/*document"

func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return documentPath
}

// RequestLogger logs one line per HTTP request, at WARN for 4xx and ERROR
// for 5xx.
func RequestLogger(logger eni.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		log := logger.Info
		switch {
		case status >= 500:
			log = logger.Error
		case status >= 400:
			log = logger.Warn
		}

		log("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
			"bytes", c.Writer.Size())
	}
}

// RequestMetrics records request counts and durations.
func RequestMetrics(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveHTTP(c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}
