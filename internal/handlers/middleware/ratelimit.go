package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/quietleaf/journal/internal/handlers/render"
	"github.com/quietleaf/journal/internal/service/ratelimit"
)

// RateLimit applies the limiter keyed by client address
// A nil limiter disables limiting
func RateLimit(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientKey(r), time.Now()) {
				render.ServiceError(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
