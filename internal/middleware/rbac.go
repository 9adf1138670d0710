package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/campuscode/autograder-api/internal/utils"
)

// RequireRole ensures that the authenticated user possesses one of the
// allowed roles. Missing or unknown roles are rejected.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
