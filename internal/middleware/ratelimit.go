package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	apierrors "licgate/internal/errors"
)

// RateLimiter applies a token-bucket limit per client address. The limiter
// map is advisory: approximate counting under concurrent access is fine, a
// hot client just gets throttled.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	logger   *slog.Logger
	rejected prometheus.Counter

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a per-client rate limiter. rejected may be nil.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger, rejected prometheus.Counter) *RateLimiter {
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger,
		rejected: rejected,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Handler rejects requests exceeding the client's allowance with 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.clientLimiter(clientAddr(r)).Allow() {
			if rl.rejected != nil {
				rl.rejected.Inc()
			}
			rl.logger.WarnContext(r.Context(), "rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			w.Header().Set("Retry-After", "60")
			_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) clientLimiter(addr string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.limiters[addr]
	if !ok {
		lim = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[addr] = lim
	}
	return lim
}

// clientAddr strips the port so one client is one bucket regardless of
// ephemeral source ports.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
