package httpapi

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/apimgr/notifyengine/internal/notifyengine/logging"
)

const requestIDKey = "request_id"

const (
	headerXRequestID     = "X-Request-ID"
	headerXCorrelationID = "X-Correlation-ID"
)

// RequestID generates or propagates a per-request correlation ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerXRequestID)
		if id == "" {
			id = c.GetHeader(headerXCorrelationID)
		}
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(headerXRequestID, id)
		c.Next()
	}
}

// AccessLog logs every request through the configured access formatter.
func AccessLog(formatter *logging.AccessFormatter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logging.ExtractAccessEntry(c, start, c.Writer.Size())
		if len(c.Errors) > 0 {
			entry.ErrorMessage = c.Errors.String()
		}
		log.Println(formatter.Format(entry))
	}
}

// Recovery logs a panic with its request ID and returns 500 instead of
// crashing the worker pool's HTTP surface.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				reqID, _ := c.Get(requestIDKey)
				log.Printf("❌ panic handling request %v: %v", reqID, r)
				c.AbortWithStatusJSON(500, gin.H{"error": "internal_error"})
			}
		}()
		c.Next()
	}
}

// PassthroughAuth marks the seam where an operator mounts their own
// authentication/authorization middleware. The engine assumes auth happens
// upstream and does not implement it itself.
func PassthroughAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
	}
}
