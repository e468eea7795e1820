package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/httpx"
	"github.com/Chengenchong/PayLentine-Backend/internal/ledger"
)

// Handler exposes HTTP endpoints for card funding flows.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CardIn processes wallet top-ups funded by cards.
func (h *Handler) CardIn(c *fiber.Ctx) error {
	var req CardInRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	amount, err := httpx.Amount("amount", req.Amount)
	if err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)

	result, err := h.service.CardIn(c.UserContext(), CardInInput{
		UserID:     uid,
		Currency:   req.Currency,
		Amount:     amount,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVV:        req.CVV,
	})
	return reply(c, result, err)
}

// CardOut processes wallet withdrawals to cards.
func (h *Handler) CardOut(c *fiber.Ctx) error {
	var req CardOutRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	amount, err := httpx.Amount("amount", req.Amount)
	if err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)

	result, err := h.service.CardOut(c.UserContext(), CardOutInput{
		UserID:     uid,
		Currency:   req.Currency,
		Amount:     amount,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
	})
	return reply(c, result, err)
}

func reply(c *fiber.Ctx, result FundingResult, err error) error {
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return c.Status(http.StatusOK).JSON(toResponse(result))
	}
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

func toResponse(result FundingResult) FundingResponse {
	return FundingResponse{
		Reference:         result.Reference,
		Status:            result.Status,
		Currency:          result.Currency,
		WalletBalance:     result.WalletBalance,
		AcquirerReference: result.AcquirerReference,
	}
}
