package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/metrics"
)

// RateLimit returns a per-IP rate limit middleware for unauthenticated HTTP
// endpoints (admin login, client log ingestion). The rate uses ulule's
// formatted notation, e.g. "10-M" for ten per minute. With a Redis client the
// counters are shared across instances; otherwise they live in memory.
//
// Store failures fail open. The limiter protects against abuse, it must not
// take the endpoint down with it.
func RateLimit(formatted string, redisClient *redis.Client) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", formatted, err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "thaasbai:httplimit:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}
	lim := limiter.New(store, rate)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		lctx, err := lim.Get(ctx, c.ClientIP())
		if err != nil {
			logging.Error(ctx, "http rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.AdmissionRejections.WithLabelValues("http_rate").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "too many requests",
				"retryAfter": lctx.Reset,
			})
			return
		}
		c.Next()
	}, nil
}
