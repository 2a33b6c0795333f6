package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"stagecast/pkg/logger"
)

// RequestLoggingMiddleware logs each control API request with any
// context fields the other middleware attached.
func RequestLoggingMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		ctx := c.Request.Context()
		if operatorID, ok := c.Get("operator_id"); ok {
			if id, isString := operatorID.(string); isString {
				ctx = context.WithValue(ctx, "operator_id", id)
			}
		}

		cl.LogRequest(ctx, c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
