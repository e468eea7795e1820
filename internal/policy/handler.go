package policy

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/Chengenchong/PayLentine-Backend/internal/httpx"
)

// Handler exposes the caller's approval policy.
type Handler struct {
	service *Service
}

// NewHandler builds a policy HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type updateRequest struct {
	Enabled             bool   `json:"enabled"`
	ThresholdAmount     string `json:"threshold_amount" validate:"required,positive_amount"`
	ApproverID          string `json:"approver_id" validate:"omitempty,max=64"`
	ApproverEmail       string `json:"approver_email" validate:"omitempty,email"`
	Locked              bool   `json:"locked"`
	ReverificationProof string `json:"reverification_proof"`
}

type evaluateRequest struct {
	Amount string `json:"amount" validate:"required,positive_amount"`
}

type settingsResponse struct {
	Enabled         bool            `json:"enabled"`
	ThresholdAmount decimal.Decimal `json:"threshold_amount"`
	ApproverID      string          `json:"approver_id,omitempty"`
	Locked          bool            `json:"locked"`
	Configured      bool            `json:"configured"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
}

func toResponse(s Settings) settingsResponse {
	updated := s.UpdatedAt
	return settingsResponse{
		Enabled:         s.Enabled,
		ThresholdAmount: s.ThresholdAmount,
		ApproverID:      s.ApproverID,
		Locked:          s.Locked,
		Configured:      true,
		UpdatedAt:       &updated,
	}
}

// Get returns the caller's settings. An unconfigured policy is reported as
// disabled rather than as an error.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	settings, err := h.service.GetSettings(c.UserContext(), uid)
	if errors.Is(err, ErrNotConfigured) {
		return c.Status(http.StatusOK).JSON(settingsResponse{})
	}
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(settings))
}

// Update replaces the caller's settings.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req updateRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	threshold, err := httpx.Amount("threshold_amount", req.ThresholdAmount)
	if err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)
	settings, err := h.service.UpdateSettings(c.UserContext(), uid, UpdateInput{
		Enabled:             req.Enabled,
		ThresholdAmount:     threshold,
		ApproverID:          req.ApproverID,
		ApproverEmail:       req.ApproverEmail,
		Locked:              req.Locked,
		ReverificationProof: req.ReverificationProof,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(settings))
}

// Evaluate reports whether an amount would need approval for the caller.
func (h *Handler) Evaluate(c *fiber.Ctx) error {
	var req evaluateRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	amount, err := httpx.Amount("amount", req.Amount)
	if err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)
	ev, err := h.service.Evaluate(c.UserContext(), uid, amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"requires_approval": ev.RequiresApproval,
		"reason":            ev.Reason,
		"approver_id":       ev.ApproverID,
	})
}
