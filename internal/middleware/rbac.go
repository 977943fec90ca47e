package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/acadops/campus-api/internal/utils"
)

// RequireRole gates a route group to the given roles. It relies on the JWT
// middleware having stored a normalized role string in the request locals;
// checks beyond the role itself (ownership, enrollment) belong to the policy
// package, not here.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(role))]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
