package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v2:"
	inProgressMarker     = "__in_progress__"
	cacheOpTimeout       = 2 * time.Second
)

var (
	errIdempotencyInFlight = apperr.New(apperr.Conflict, "duplicate request currently processing")
	errIdempotencyStore    = apperr.New(apperr.Internal, "idempotency store failure")
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Idempotency replays the stored response of an unsafe request when the same
// caller repeats its Idempotency-Key within ttl. Keys are scoped to the
// authenticated user and the route. Requests without the header, and every
// request when cache is nil, pass straight through; the ledger's per-reference
// deduplication still applies to them.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if cache == nil || key == "" {
			return c.Next()
		}
		if len(key) > 128 {
			return apperr.Invalid(idempotencyKeyHeader, "must be at most 128 characters")
		}

		userID, _ := c.Locals(UserIDKey).(string)
		cacheKey := idempotencyPrefix + userID + ":" + c.Method() + ":" + c.Path() + ":" + key

		ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
		defer cancel()

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return errIdempotencyStore
		}
		if !reserved {
			return replay(ctx, c, cache, cacheKey, logger)
		}

		if err := c.Next(); err != nil {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
			defer cancel()
			cache.Del(cleanupCtx, cacheKey)
			return err
		}

		stored := storedResponse{
			Status:  c.Response().StatusCode(),
			Body:    string(c.Response().Body()),
			Headers: map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})

		persistCtx, persistCancel := context.WithTimeout(context.Background(), cacheOpTimeout)
		defer persistCancel()

		payload, err := json.Marshal(stored)
		if err == nil {
			err = cache.Set(persistCtx, cacheKey, payload, ttl).Err()
		}
		if err != nil {
			// the handler already ran; release the key and keep its response
			logger.Error("failed to persist idempotent response", slog.String("key", key), slog.Any("error", err))
			cache.Del(persistCtx, cacheKey)
		}
		return nil
	}
}

func replay(ctx context.Context, c *fiber.Ctx, cache *redis.Client, cacheKey string, logger *slog.Logger) error {
	cached, err := cache.Get(ctx, cacheKey).Result()
	if err == redis.Nil || cached == inProgressMarker {
		return errIdempotencyInFlight
	}
	if err != nil {
		logger.Error("idempotency lookup failed", slog.String("key", cacheKey), slog.Any("error", err))
		return errIdempotencyStore
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		logger.Warn("failed to decode stored idempotent response", slog.String("key", cacheKey), slog.Any("error", err))
		return apperr.New(apperr.Conflict, "duplicate request")
	}
	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) {
			continue
		}
		c.Set(header, value)
	}
	c.Set("Idempotent-Replayed", "true")
	return c.Status(stored.Status).SendString(stored.Body)
}
