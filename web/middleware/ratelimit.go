package middleware

import (
	"net/http"

	"github.com/memberpanel/memberpanel/logger"
	"github.com/memberpanel/memberpanel/util/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const rateLimitBody = "Too many attempts. Please wait a moment and try again."

// RateLimit limits requests per client IP with counters kept in redis under prefix.
// formatted follows the limiter notation, e.g. "20-M" for twenty per minute.
func RateLimit(client *redis.Client, prefix, formatted string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   "ratelimit:" + prefix,
		MaxRetry: 3,
	})
	if err != nil {
		return nil, err
	}

	return mgin.NewMiddleware(limiter.New(store, rate),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			logger.Warningf("Rate limit exceeded for %s on %s", c.ClientIP(), c.Request.URL.Path)
			metrics.RateLimitHits.Inc()
			c.String(http.StatusTooManyRequests, rateLimitBody)
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			logger.Error("rate limiter store failed: ", err)
			c.String(http.StatusInternalServerError, internalErrorBody)
		}),
	), nil
}
