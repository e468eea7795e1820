package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets", h.List)
	r.Get("/wallets/:currency/balance", h.Balance)
	r.Delete("/wallets/:currency", h.Deactivate)
}
