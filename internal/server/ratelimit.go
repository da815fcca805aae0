package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/quickfaqs/quickfaqs-api/internal/utils"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL         = 10 * time.Minute
	limiterCleanupInterval = 5 * time.Minute
)

// RateLimiter is a per-client-IP token bucket limiter. Idle buckets expire
// from the table.
type RateLimiter struct {
	visitors *cache.Cache
	limit    rate.Limit
	burst    int
	trusted  *utils.TrustedProxies
}

// NewRateLimiter allows perMinute requests per client IP, with bursts up to
// the same amount. Forwarding headers count only from trusted proxies.
func NewRateLimiter(perMinute int, trusted *utils.TrustedProxies) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &RateLimiter{
		visitors: cache.New(limiterIdleTTL, limiterCleanupInterval),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		trusted:  trusted,
	}
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	if v, ok := rl.visitors.Get(ip); ok {
		l := v.(*rate.Limiter)
		rl.visitors.SetDefault(ip, l)
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	if err := rl.visitors.Add(ip, l, cache.DefaultExpiration); err != nil {
		// Lost the race to another request from the same IP.
		if v, ok := rl.visitors.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

// Allow reports whether a request from ip is within the limit.
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.limiterFor(ip).Allow()
}

// Middleware wraps an http.Handler with rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := utils.GetClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"), rl.trusted)
		if !rl.Allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(60))
			utils.WriteJSON(w, http.StatusTooManyRequests, utils.ErrorResponse{
				Error: "Too many requests, please try again later",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
