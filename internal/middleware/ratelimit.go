package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/securetrack/api/internal/config"
)

// NewTokenBucket returns a Redis-backed token-bucket limiter keyed on
// client IP and route. It fronts the credential endpoints: login and
// register burn bcrypt CPU and are the obvious credential-stuffing
// target. When Redis is unavailable (nil client, or a script error at
// request time) the limiter fails open rather than blocking logins.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	limiterScript := redis.NewScript(`
        local key = KEYS[1]
        local now = tonumber(ARGV[1])
        local cap = tonumber(ARGV[2])
        local refill = tonumber(ARGV[3])
        local period = tonumber(ARGV[4])
        local ttl = tonumber(ARGV[5])

        local bucket = redis.call('HMGET', key, 'avail', 'stamp')
        local avail = tonumber(bucket[1])
        local stamp = tonumber(bucket[2])

        -- First sight of this key: a full bucket stamped now.
        if avail == nil or stamp == nil then
            avail = cap
            stamp = now
        elseif period > 0 and refill > 0 then
            local ticks = math.floor(math.max(0, now - stamp) / period)
            if ticks > 0 then
                avail = math.min(cap, avail + ticks * refill)
                stamp = stamp + ticks * period
            end
        end

        local granted = 0
        local wait = 0
        if avail > 0 then
            granted = 1
            avail = avail - 1
        else
            wait = math.max(0, period - (now - stamp))
        end

        redis.call('HMSET', key, 'avail', avail, 'stamp', stamp)
        redis.call('EXPIRE', key, ttl)

        return { granted, avail, wait }
    `)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key := strings.Join([]string{cfg.Prefix, "ip", ip, "route", c.Request().Method + " " + c.Path()}, ":")

			args := []interface{}{
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}

			vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
			if err != nil {
				if cfg.Debug {
					c.Logger().Warnf("[ratelimit] redis error for key=%s: %v", key, err)
				}
				return next(c)
			}

			allowed := false
			remaining := int64(0)
			retryMs := int64(0)
			if arr, ok := vals.([]interface{}); ok && len(arr) == 3 {
				if i, ok := arr[0].(int64); ok {
					allowed = i == 1
				} else {
					allowed = fmt.Sprint(arr[0]) == "1"
				}
				remaining = asInt64(arr[1])
				retryMs = asInt64(arr[2])
			} else {
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
