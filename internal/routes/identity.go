package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/identity"
)

// RegisterProfileRoute exposes the caller's profile and verification status.
func RegisterProfileRoute(r fiber.Router, ids *identity.Service) {
	r.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		user, err := ids.Get(c.UserContext(), uid)
		if err != nil {
			return err
		}
		kyc, err := ids.KYCStatus(c.UserContext(), uid)
		if err != nil {
			return err
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"user_id":       user.ID,
			"email":         user.Email,
			"phone":         user.Phone,
			"tier":          user.Tier,
			"kyc_approved":  kyc.IsApproved,
			"device_id":     user.DeviceID,
			"token_version": user.TokenVersion,
			"created_at":    user.CreatedAt,
			"last_login":    user.LastLogin,
		})
	})
}
