package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/httpx"
)

// Audit emits structured logs for each request/response lifecycle event.
// Client errors are logged at warn, server errors at error.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = httpx.StatusOf(err)
		}
		requestID, _ := c.Locals(requestIDHeader).(string)
		userID, _ := c.Locals(UserIDKey).(string)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request completed", attrs...)
		case err != nil:
			attrs = append(attrs, slog.String("error", err.Error()))
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
		return err
	}
}
