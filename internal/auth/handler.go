package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/httpx"
	"github.com/Chengenchong/PayLentine-Backend/internal/identity"
)

// Handler exposes auth endpoints for register/login/refresh/logout.
type Handler struct {
	ids *identity.Service
	svc *Service
}

func NewHandler(ids *identity.Service, svc *Service) *Handler {
	return &Handler{ids: ids, svc: svc}
}

type registerRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"required,min=6,max=20"`
	PIN      string `json:"pin" validate:"required,numeric,min=4,max=8"`
	DeviceID string `json:"device_id" validate:"max=128"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

// Register creates a tier0 account.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.ids.Register(c.UserContext(), identity.Credentials{Email: req.Email, Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(userResponse{ID: user.ID, Email: user.Email, Phone: user.Phone, Tier: user.Tier, CreatedAt: user.CreatedAt})
}

type loginRequest struct {
	Phone    string `json:"phone" validate:"required"`
	PIN      string `json:"pin" validate:"required"`
	DeviceID string `json:"device_id"`
}

type loginResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, pair, err := h.svc.Login(c.UserContext(), identity.Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		UserID:       user.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		TokenVersion: user.TokenVersion,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"access_token": token, "expires_in": exp})
}

// Logout invalidates the caller's tokens by bumping the token version.
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if err := h.svc.Logout(c.UserContext(), uid); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

type reverifyRequest struct {
	PIN string `json:"pin" validate:"required"`
}

// Reverify exchanges the caller's PIN for a single-use re-verification proof.
func (h *Handler) Reverify(c *fiber.Ctx) error {
	var req reverifyRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)
	proof, err := h.svc.Reverify(c.UserContext(), uid, req.PIN)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"reverification_proof": proof.Token, "expires_at": proof.ExpiresAt})
}
