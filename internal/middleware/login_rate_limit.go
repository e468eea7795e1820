package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const loginRatePrefix = "rl:login:"

// LoginRateLimit limits login attempts per phone, or per IP when the body has
// no phone, to maxPerMin a minute. Without Redis it is a no-op and on cache
// errors it fails open.
func LoginRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.Phone)
		if subject == "" {
			subject = c.IP()
		}

		key := loginRatePrefix + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			logger.Warn("login rate limit unavailable", slog.Any("error", err))
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
