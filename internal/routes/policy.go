package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/limits"
	"github.com/Chengenchong/PayLentine-Backend/internal/policy"
)

// RegisterPolicyRoutes wires approval policy settings and the limits view.
func RegisterPolicyRoutes(r fiber.Router, h *policy.Handler, lh *limits.Handler) {
	r.Get("/policy", h.Get)
	r.Put("/policy", h.Update)
	r.Post("/policy/evaluate", h.Evaluate)
	r.Get("/limits", lh.Get)
}
