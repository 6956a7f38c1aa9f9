package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Roles carried in the JWT "role" claim.
const (
	RoleAdmin     = "admin"
	RoleReviewer  = "reviewer"
	RoleCandidate = "candidate"
)

// RoleFromContext returns the lower-cased role bound by JWTProtected, or "".
func RoleFromContext(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	return normalizeRoleValue(c.Locals("user_role"))
}

// IsStaffRole reports whether role may review and approve exams.
func IsStaffRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	return role == RoleAdmin || role == RoleReviewer
}

func roleMatches(required, current string) bool {
	switch required {
	case AuthRoleAny:
		return true
	case AuthRoleStaff:
		return IsStaffRole(current)
	default:
		return current == required
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
