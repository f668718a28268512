package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/utils"
)

// Roles understood by the grader.
const (
	AuthRoleAdmin   = "admin"
	AuthRoleTeacher = "teacher"
	AuthRoleStudent = "student"
)

// RequireUser rejects requests that carry no authenticated user id.
func RequireUser(handler fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := c.Locals("user_id").(uint); !ok {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		return handler(c)
	}
}

// RequireRole admits only callers whose role is one of roles. Problem
// authoring is limited to admins and teachers this way.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	required := make([]string, 0, len(roles))
	for _, role := range roles {
		normalized := normalizeRoleValue(role)
		if normalized == "" {
			continue
		}
		if _, seen := allowed[normalized]; !seen {
			required = append(required, normalized)
		}
		allowed[normalized] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[RoleFromContext(c)]; !ok {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{
				"required_roles": required,
			})
		}
		return c.Next()
	}
}

// RoleFromContext returns the normalised role set by Authenticate, or "".
func RoleFromContext(c *fiber.Ctx) string {
	return normalizeRoleValue(c.Locals("user_role"))
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
	}
}
