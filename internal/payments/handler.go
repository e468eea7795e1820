package payments

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
	"github.com/Chengenchong/PayLentine-Backend/internal/approval"
	"github.com/Chengenchong/PayLentine-Backend/internal/httpx"
	"github.com/Chengenchong/PayLentine-Backend/internal/ledger"
)

// Handler exposes transfer and decision endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	RecipientID string `json:"recipient_id" validate:"required,max=64"`
	Amount      string `json:"amount" validate:"required,positive_amount"`
	Currency    string `json:"currency" validate:"required,currency"`
	Description string `json:"description" validate:"max=255"`
	ClientTxID  string `json:"client_tx_id" validate:"max=128"`
}

type decisionRequest struct {
	Message string `json:"message" validate:"max=500"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func transferBody(res *ledger.TransferResult) fiber.Map {
	if res == nil {
		return nil
	}
	return fiber.Map{
		"movement_id":  res.MovementID,
		"amount":       res.Amount,
		"currency":     res.Currency,
		"from_balance": res.FromBalance,
		"to_balance":   res.ToBalance,
		"completed_at": res.CompletedAt,
	}
}

// Transfer requests a transfer from the caller. The reply is 201 when the
// ledger applied it and 202 when it awaits approval.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	amount, err := httpx.Amount("amount", req.Amount)
	if err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)
	reference := req.ClientTxID
	if reference == "" {
		reference = c.Get("Idempotency-Key")
	}

	out, err := h.service.RequestTransfer(c.UserContext(), TransferInput{
		InitiatorID: uid,
		RecipientID: req.RecipientID,
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
		Reference:   reference,
	})
	if err != nil {
		return err
	}

	if out.Pending != nil {
		return c.Status(http.StatusAccepted).JSON(fiber.Map{
			"status":  out.Status,
			"reason":  out.Reason,
			"pending": approval.ToResponse(*out.Pending),
		})
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"status":   out.Status,
		"reason":   out.Reason,
		"transfer": transferBody(out.Transfer),
	})
}

// Approve approves a pending transaction and executes it. When the approval
// succeeds but execution fails the reply is 200 with execution.status
// "failed", so clients can tell it apart from a rejected decision.
func (h *Handler) Approve(c *fiber.Ctx) error {
	var req decisionRequest
	if len(c.Body()) > 0 {
		if err := httpx.Bind(c, &req); err != nil {
			return err
		}
	}
	uid, _ := c.Locals("user_id").(string)
	decision, err := h.service.Approve(c.UserContext(), c.Params("id"), uid, req.Message)
	return h.decisionReply(c, decision, err)
}

// Execute retries execution of an approved transfer.
func (h *Handler) Execute(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	decision, err := h.service.ExecuteApproved(c.UserContext(), c.Params("id"), uid)
	return h.decisionReply(c, decision, err)
}

func (h *Handler) decisionReply(c *fiber.Ctx, decision Decision, err error) error {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		kind := apperr.KindOf(execErr.Err)
		status := apperr.HTTPStatus(kind)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"pending": approval.ToResponse(decision.Pending),
			"execution": fiber.Map{
				"status": "failed",
				"error": httpx.ErrorResponse{
					Code:    strconv.Itoa(status),
					Title:   string(kind),
					Message: execErr.Err.Error(),
				},
			},
		})
	}
	if err != nil {
		return err
	}

	execution := fiber.Map{"status": "not_applicable"}
	if decision.Transfer != nil {
		execution = fiber.Map{"status": StatusCompleted, "transfer": transferBody(decision.Transfer)}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"pending":   approval.ToResponse(decision.Pending),
		"execution": execution,
	})
}

// Reject rejects a pending transaction.
func (h *Handler) Reject(c *fiber.Ctx) error {
	var req rejectRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)
	p, err := h.service.Reject(c.UserContext(), c.Params("id"), uid, req.Reason)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(approval.ToResponse(p))
}

// Cancel withdraws the caller's pending transaction.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	p, err := h.service.Cancel(c.UserContext(), c.Params("id"), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(approval.ToResponse(p))
}
