package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Chengenchong/PayLentine-Backend/internal/auth"
)

// UserIDKey is the fiber.Locals key holding the authenticated user's id.
const UserIDKey = "user_id"

// TokenAuthenticator validates access tokens.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (auth.Claims, error)
}

// JWTAuth returns a middleware that validates bearer access tokens, including
// the token version, and stores the subject under UserIDKey.
func JWTAuth(tokens TokenAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := tokens.Authenticate(c.UserContext(), strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return err
		}
		c.Locals(UserIDKey, claims.Subject)
		c.Locals("token_version", claims.Version)
		return c.Next()
	}
}
