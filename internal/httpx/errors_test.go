package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
	"github.com/Chengenchong/PayLentine-Backend/internal/logging"
)

func TestErrorHandlerMapsKinds(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/expired", func(*fiber.Ctx) error { return apperr.New(apperr.Expired, "too late") })
	app.Get("/fiber", func(*fiber.Ctx) error { return fiber.NewError(http.StatusTeapot, "short and stout") })
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("db down") })

	tests := []struct {
		path   string
		status int
		title  string
	}{
		{"/expired", http.StatusGone, "expired"},
		{"/fiber", http.StatusTeapot, http.StatusText(http.StatusTeapot)},
		{"/boom", http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.title, body.Title)
			assert.NotContains(t, body.Message, "db down")
		})
	}
}
