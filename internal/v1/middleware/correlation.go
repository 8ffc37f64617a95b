// Package middleware contains Gin middleware for the coordinator's HTTP surface.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thaasbai/coordinator/internal/v1/logging"
)

// HeaderXCorrelationID is the header key for the correlation ID.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID tags every request with a correlation ID. The ID is echoed in
// the response header, stored under the gin key for HTTP handlers, and
// injected into the request context so websocket code that only sees
// r.Context() after the upgrade still logs it.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderXCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Header(HeaderXCorrelationID, correlationID)
		c.Set(string(logging.CorrelationIDKey), correlationID)
		c.Request = c.Request.WithContext(
			logging.WithCorrelation(c.Request.Context(), correlationID),
		)

		c.Next()
	}
}
