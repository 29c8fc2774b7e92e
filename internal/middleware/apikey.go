package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/VoolFI71/zzz-sub000/internal/config"
)

// APIKeyAuth guards the internal API with a shared secret in the X-API-Key
// header. The comparison is constant-time.
func APIKeyAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-API-Key")
		expected := cfg.Server.APIKey

		if expected == "" || len(key) != len(expected) ||
			subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "invalid api key",
			})
		}

		return c.Next()
	}
}
