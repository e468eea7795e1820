package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/httpx"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type openRequest struct {
	Currency string `json:"currency" validate:"omitempty,currency"`
}

// Create opens a wallet for the authenticated user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req openRequest
	if len(c.Body()) > 0 {
		if err := httpx.Bind(c, &req); err != nil {
			return err
		}
	}
	uid, _ := c.Locals("user_id").(string)
	w, err := h.service.Open(c.UserContext(), uid, req.Currency)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(w)
}

// List returns all of the caller's wallets.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	wallets, err := h.service.List(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"items": wallets})
}

// Balance returns the caller's balance in one currency.
func (h *Handler) Balance(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	balance, err := h.service.Balance(c.UserContext(), uid, c.Params("currency"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(balance)
}

// Deactivate closes the caller's wallet in one currency.
func (h *Handler) Deactivate(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if err := h.service.Deactivate(c.UserContext(), uid, c.Params("currency")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
