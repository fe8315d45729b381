package middleware

import (
	"net"
	"net/http"

	"alertmonitor/internal/cache"
	"alertmonitor/internal/logger"

	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"
)

// RateLimit throttles clients per IP using a Redis-backed GCRA limiter, so
// the limit holds across API instances.
func RateLimit(perSecond int, next http.Handler) http.Handler {
	limiter := redis_rate.NewLimiter(cache.RedisClient)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		res, err := limiter.Allow(r.Context(), "ratelimit:"+ip, redis_rate.PerSecond(perSecond))
		if err != nil {
			// Limiter outage should not take the API down with it.
			logger.Log.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if res.Allowed == 0 {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
