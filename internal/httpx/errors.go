package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes an ErrorResponse with the given status.
func WriteError(c *fiber.Ctx, status int, title, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Code:    strconv.Itoa(status),
		Title:   title,
		Message: message,
	})
}

// ErrorHandler renders handler errors. Classified errors map through
// apperr.HTTPStatus; fiber errors keep their status; anything else is a 500
// with a generic message.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return WriteError(c, fe.Code, http.StatusText(fe.Code), fe.Message)
		}

		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind != apperr.Internal {
			status := apperr.HTTPStatus(ae.Kind)
			return c.Status(status).JSON(ErrorResponse{
				Code:    strconv.Itoa(status),
				Title:   string(ae.Kind),
				Message: message(ae),
				Field:   ae.Field,
			})
		}

		reqID, _ := c.Locals("X-Request-ID").(string)
		logger.Error("http.unhandled_error",
			slog.String("request_id", reqID),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Any("error", err),
		)
		return WriteError(c, http.StatusInternalServerError, string(apperr.Internal), "internal server error")
	}
}

func message(e *apperr.Error) string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// StatusOf returns the status ErrorHandler will answer err with.
func StatusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return apperr.HTTPStatus(ae.Kind)
	}
	return http.StatusInternalServerError
}
