package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mythsumon/job-sub002/internal/logger"
	"golang.org/x/time/rate"
)

// UserRateLimiter keeps one token bucket per authenticated user.
type UserRateLimiter struct {
	mu      sync.Mutex
	users   map[string]*limiterEntry
	r       rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserRateLimiter allows perMinute requests per user with the given burst.
func NewUserRateLimiter(perMinute, burst int) *UserRateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &UserRateLimiter{
		users:   make(map[string]*limiterEntry),
		r:       rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		idleTTL: 3 * time.Minute,
		now:     time.Now,
	}
}

func (rl *UserRateLimiter) limiter(uid string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	e, ok := rl.users[uid]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.r, rl.burst)}
		rl.users[uid] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Sweep drops buckets idle for longer than the TTL.
func (rl *UserRateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	cutoff := rl.now().Add(-rl.idleTTL)
	for uid, e := range rl.users {
		if e.lastSeen.Before(cutoff) {
			delete(rl.users, uid)
			removed++
		}
	}
	return removed
}

// Middleware must run after RequireAuth; requests without a uid pass through.
func (rl *UserRateLimiter) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, _ := c.Get("uid").(string)
		if uid == "" {
			return next(c)
		}
		if !rl.limiter(uid).Allow() {
			logger.Warn().Str("uid", uid).Str("path", c.Path()).Msg("rate limit exceeded")
			return c.JSON(http.StatusTooManyRequests, map[string]map[string]string{
				"error": {"code": "rate_limited", "message": "too many messages, slow down"},
			})
		}
		return next(c)
	}
}
