package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/otpgate/otpgate/internal/infra"
)

const loginRateWindow = time.Minute

// LoginRateLimit limits login requests per username and client IP using Redis
// if available. Keying on the pair keeps a third party from locking a known
// user out by spamming their username from elsewhere.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			Username string `json:"username"`
		}
		_ = c.BodyParser(&req)
		subject := "ip:" + c.IP()
		if username := strings.ToLower(strings.TrimSpace(req.Username)); username != "" {
			subject = "user:" + username + ":" + subject
		}
		key := "rl:login:" + c.Route().Path + ":" + subject
		cnt, err := infra.IncrWindow(c.UserContext(), cache, key, loginRateWindow)
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
