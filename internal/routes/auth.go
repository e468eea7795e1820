package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/auth"
)

// RegisterAuthRoutes wires the public authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/register", h.Register)
	group.Post("/login", rateLimiter, h.Login)
	group.Post("/refresh", h.Refresh)
}

// RegisterSessionRoutes wires authentication endpoints that need a valid
// access token.
func RegisterSessionRoutes(r fiber.Router, h *auth.Handler) {
	r.Post("/auth/logout", h.Logout)
	r.Post("/auth/reverify", h.Reverify)
}
