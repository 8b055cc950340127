package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitKeyPrefix = "ratelimit:login:"

// LoginRateLimit limits requests per client IP within a fixed window,
// backed by Redis. Login is the only brute-forceable endpoint, so it is the
// only one throttled. The limiter fails open: when Redis is unavailable the
// request proceeds and the failure is logged.
func LoginRateLimit(client *redis.Client, limit int, window time.Duration, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if client == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := rateLimitKeyPrefix + clientIP(r)
			ctx := r.Context()

			count, err := client.Incr(ctx, key).Result()
			if err != nil {
				log.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				client.Expire(ctx, key, window)
			}

			if count > int64(limit) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the requester's IP, honoring the reverse proxy header
// when present.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
