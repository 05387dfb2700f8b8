package middleware

import (
	"github.com/gofiber/fiber/v2"

	"stickerquote/internal/infra/logging"
	"stickerquote/internal/tokens"
)

// ScopeSource resolves the scope of an authenticated token.
type ScopeSource interface {
	Scope(token string) tokens.Scope
}

// RequireScope rejects token-authenticated requests whose scope lacks group.
// Anonymous requests pass.
func RequireScope(group string, src ScopeSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals(APIKeyLocal).(string)
		if !ok || token == "" || src == nil {
			return c.Next()
		}
		if !src.Scope(token).Allows(group) {
			logging.Warn("Token scope denied", "group", group, "path", c.Path())
			return fiber.NewError(fiber.StatusForbidden, "API key not allowed for "+group)
		}
		return c.Next()
	}
}
