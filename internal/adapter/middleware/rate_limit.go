package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewLimiter builds a limiter shared by every API instance through redis.
// A nil client falls back to a process-local store.
func NewLimiter(rdb *redis.Client, limit int64, period time.Duration) (*limiter.Limiter, error) {
	if limit <= 0 {
		limit = 120
	}
	if period <= 0 {
		period = time.Minute
	}
	rate := limiter.Rate{Period: period, Limit: limit}

	if rdb == nil {
		return limiter.New(memory.NewStore(), rate), nil
	}
	store, err := sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix:   "ratelimit:p2p",
		MaxRetry: 3,
	})
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

// rateKey prefers the authenticated client id, then the caller address.
func rateKey(c echo.Context) string {
	if id := strings.TrimSpace(c.Request().Header.Get(HeaderClientID)); reHex32.MatchString(id) {
		return "client:" + id
	}
	return "ip:" + c.RealIP()
}

func RateLimit(l *limiter.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lc, err := l.Get(c.Request().Context(), rateKey(c))
			if err != nil {
				// store down: serve rather than reject everything
				c.Logger().Warnf("rate limit: %v", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))

			if lc.Reached {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests, retry later"})
			}
			return next(c)
		}
	}
}
