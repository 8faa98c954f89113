package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestLogger logs one line per request, the same shape as the
// teacher's middleware.Logger but stamping its own request id since
// this surface has no upstream auth middleware to set one.
func requestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Set("request_id", requestID)

		c.Next()

		logger.Printf("[API] %s %s %s %d %v",
			requestID, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// recovery converts a panic inside a handler into a 500 instead of
// crashing the engine process.
func recovery(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("[API] panic recovered: %v", r)
				c.JSON(500, gin.H{"error": "internal error"})
				c.Abort()
			}
		}()
		c.Next()
	}
}
