package middleware

import (
	"crypto/subtle"
	"strings"

	"bounty-quest/logging"

	"github.com/gofiber/fiber/v2"
)

// OperatorAuth guards operator routes with the shared AUTH_TOKEN bearer token.
func OperatorAuth(expectedToken string, logger logging.Logger) fiber.Handler {
	logger = logger.With("component", "operator_auth")

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			logger.Warn("missing authorization header", "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "operator token missing",
			})
		}

		// a raw token without the Bearer prefix is accepted too
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			logger.Warn("invalid operator token", "path", c.Path(), "ip", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid operator token",
			})
		}

		return c.Next()
	}
}
