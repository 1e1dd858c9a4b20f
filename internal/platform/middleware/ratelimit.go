package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/rcm/rcm/internal/platform/auth"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL evicts limiters for clients not seen for this long.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 100, BurstSize: 200, IdleTTL: 10 * time.Minute}
}

type limiterStore struct {
	cfg      RateLimitConfig
	limiters *cache.Cache
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &limiterStore{cfg: cfg, limiters: cache.New(cfg.IdleTTL, cfg.IdleTTL)}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	if l, ok := s.limiters.Get(key); ok {
		// touch so active clients are not evicted
		s.limiters.SetDefault(key, l)
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)
	// Add fails if another request created the limiter first; use that one.
	if err := s.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		if existing, ok := s.limiters.Get(key); ok {
			return existing.(*rate.Limiter)
		}
	}
	return l
}

// RateLimit applies a token bucket per client. Authenticated requests are
// keyed by user id, anonymous ones by remote IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				key = "user:" + uid
			}

			limiter := store.get(key)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			res := limiter.Reserve()
			if !res.OK() {
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
