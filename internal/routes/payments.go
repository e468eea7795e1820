package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/approval"
	"github.com/Chengenchong/PayLentine-Backend/internal/payments"
)

// RegisterPaymentRoutes wires transfer initiation.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/transfers", h.Transfer)
}

// RegisterApprovalRoutes wires the approval queue. Decisions go through the
// payments handler so an approved transfer executes in the same request.
func RegisterApprovalRoutes(r fiber.Router, queue *approval.Handler, decisions *payments.Handler) {
	group := r.Group("/approvals")
	group.Get("/pending", queue.Pending)
	group.Get("/initiated", queue.Initiated)
	group.Get("/stats", queue.Stats)
	group.Get("/:id", queue.Get)
	group.Post("/:id/approve", decisions.Approve)
	group.Post("/:id/reject", decisions.Reject)
	group.Post("/:id/cancel", decisions.Cancel)
	group.Post("/:id/execute", decisions.Execute)
}
