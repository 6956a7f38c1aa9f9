package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exam-engine/internal/utils"
)

// Route-level role requirements accepted by WithAuth.
const (
	AuthRoleAny       = "any"
	AuthRoleStaff     = "staff"
	AuthRoleCandidate = RoleCandidate
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth wraps a handler with basic authentication/authorization guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}
	requireUser := opts.RequireUser || role != AuthRoleAny

	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if requireUser && strings.TrimSpace(userID) == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if !roleMatches(role, RoleFromContext(c)) {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return handler(c)
	}
}
