package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"medindex/internal/ratelimit"
)

// RateLimit enforces the per-client request budget before any handler runs.
// Clients are keyed by IP. Rejected requests get a 429 with Retry-After and
// the X-RateLimit headers; the request is not recorded against the budget.
func RateLimit(limiter *ratelimit.Limiter, perMinute int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, retryAfter := limiter.Allow(c.IP())
		if !allowed {
			secs := int(retryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Set("Retry-After", strconv.Itoa(secs))
			c.Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
			c.Set("X-RateLimit-Remaining", "0")

			rid, _ := c.Locals(RequestIDLocalKey).(string)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"request_id": rid,
				"error": fiber.Map{
					"code":    "RATE_LIMITED",
					"message": "rate limit exceeded, retry after " + strconv.Itoa(secs) + "s",
				},
			})
		}
		return c.Next()
	}
}
