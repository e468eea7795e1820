package approval

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
)

// Handler exposes the read side of the workflow. Decisions go through the
// payments handler so that approval and execution stay together.
type Handler struct {
	service *Service
}

// NewHandler builds an approval HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Response is the wire form of a pending transaction.
type Response struct {
	ID              string            `json:"id"`
	InitiatorID     string            `json:"initiator_id"`
	Reference       string            `json:"reference,omitempty"`
	ApproverID      string            `json:"approver_id"`
	Kind            Kind              `json:"kind"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Recipient       string            `json:"recipient,omitempty"`
	Payload         map[string]string `json:"payload,omitempty"`
	Status          Status            `json:"status"`
	ExpiresAt       time.Time         `json:"expires_at"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
	ApprovalMessage string            `json:"approval_message,omitempty"`
	RejectedAt      *time.Time        `json:"rejected_at,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ToResponse converts a record to its wire form.
func ToResponse(p PendingTransaction) Response {
	return Response{
		ID:              p.ID,
		InitiatorID:     p.InitiatorID,
		Reference:       p.Reference,
		ApproverID:      p.ApproverID,
		Kind:            p.Kind,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Recipient:       p.Recipient,
		Payload:         p.Payload,
		Status:          p.Status,
		ExpiresAt:       p.ExpiresAt,
		ApprovedAt:      p.ApprovedAt,
		ApprovalMessage: p.ApprovalMessage,
		RejectedAt:      p.RejectedAt,
		RejectionReason: p.RejectionReason,
		CancelledAt:     p.CancelledAt,
		CreatedAt:       p.CreatedAt,
	}
}

func toResponses(records []PendingTransaction) []Response {
	out := make([]Response, 0, len(records))
	for _, p := range records {
		out = append(out, ToResponse(p))
	}
	return out
}

// Pending lists records awaiting the caller's decision.
func (h *Handler) Pending(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	records, err := h.service.ListPendingForApprover(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"items": toResponses(records)})
}

// Initiated lists records the caller created.
func (h *Handler) Initiated(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	records, err := h.service.ListInitiatedBy(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"items": toResponses(records)})
}

// Stats returns the caller's workflow counters.
func (h *Handler) Stats(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	stats, err := h.service.Stats(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(stats)
}

// Get returns one record. Only its initiator and approver may read it.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	p, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if p.InitiatorID != uid && p.ApproverID != uid {
		return apperr.New(apperr.Forbidden, "not a party to this transaction")
	}
	return c.Status(http.StatusOK).JSON(ToResponse(p))
}
