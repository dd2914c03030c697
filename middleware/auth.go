package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// WorkerAuth guards the /api/ callback routes used by the compiler and
// judge workers with HTTP basic credentials. This authenticates the
// transport only; per-task admission is the single-use task token checked
// inside the state machines.
func WorkerAuth(username, password string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, pass, ok := parseBasicAuth(c.Get("Authorization"))
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			log.Printf("🚫 [WORKER_AUTH] Rejected callback on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"err": true, "name": "PermissionError", "msg": "invalid worker credentials",
			})
		}
		return c.Next()
	}
}

func parseBasicAuth(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	user, pass, ok = strings.Cut(string(decoded), ":")
	return user, pass, ok
}
