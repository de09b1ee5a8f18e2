package controller

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"prooffarm/pkg/utils/contextkey"
)

const traceHeader = "X-Trace-ID"

// TraceMiddleware puts a trace id on every request context, taking the
// caller's X-Trace-ID header when present.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(traceHeader, traceID)
		c.Next()
	}
}
