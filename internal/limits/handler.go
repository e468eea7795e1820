package limits

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Handler exposes the caller's limits.
type Handler struct {
	evaluator Evaluator
	currency  string
}

// NewHandler builds a limits handler. currency is used when the request
// names none.
func NewHandler(evaluator Evaluator, currency string) *Handler {
	return &Handler{evaluator: evaluator, currency: currency}
}

// Get returns the caller's ceilings and, per period, what remains in the
// requested currency.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	currency := c.Query("currency", h.currency)

	limits, err := h.evaluator.GetLimits(c.UserContext(), uid)
	if err != nil {
		return err
	}
	usage := make([]Check, 0, 2)
	for _, period := range []Period{PeriodDaily, PeriodMonthly} {
		check, err := h.evaluator.CheckAmount(c.UserContext(), uid, currency, decimal.Zero, period)
		if err != nil {
			return err
		}
		usage = append(usage, check)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"limits":   limits,
		"currency": currency,
		"usage":    usage,
	})
}
