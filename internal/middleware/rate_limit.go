package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/oelp-api/internal/utils"
)

// RateLimit throttles a route group per authenticated user, falling back to
// the client address for anonymous callers.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}
	retryAfter := strconv.Itoa(int(window.Seconds()))

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return rateLimitKey(identifier, c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return utils.SendErrorDetail(c, fiber.StatusTooManyRequests, "rate limit exceeded", "Too many requests")
		},
	})
}

func rateLimitKey(identifier string, c *fiber.Ctx) string {
	subject := c.IP()
	if id, ok := c.Locals("user_id").(uint); ok && id != 0 {
		subject = fmt.Sprintf("user-%d", id)
	}
	return identifier + ":" + subject
}
