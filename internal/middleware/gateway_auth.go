package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pixelpress/api/internal/auth"
	"github.com/pixelpress/api/pkg/response"
)

// GatewayAuthMiddleware trusts the X-User-* identity headers set by an API
// gateway after ForwardAuth. Only use it behind such a gateway.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		setIdentity(c, &auth.Identity{
			Subject: userID,
			Email:   c.Get("X-User-Email"),
			Name:    c.Get("X-User-Name"),
		})
		return c.Next()
	}
}
