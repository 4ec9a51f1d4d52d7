package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/taskpulse/backend/internal/config"
)

// ExtractToken pulls the caller's credential from the X-Api-Token header, an
// Authorization bearer header, or a token query parameter, in that order.
func ExtractToken(c *fiber.Ctx) string {
	if token := c.Get("X-Api-Token"); token != "" {
		return token
	}
	auth := c.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return c.Query("token")
}

// TokenAuth rejects requests whose token matches none of the configured API
// tokens. An empty token list disables the check.
func TokenAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokens := cfg.Auth.APITokens
		if len(tokens) == 0 {
			return c.Next()
		}

		candidate := ExtractToken(c)
		if candidate != "" {
			for _, token := range tokens {
				if candidate == token {
					return c.Next()
				}
			}
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "unauthorized",
		})
	}
}
