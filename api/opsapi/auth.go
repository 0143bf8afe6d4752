package opsapi

import (
	"encoding/base64"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/defensechain/defensechain/storage/model"
)

const localsOperator = "operator"

// authMiddleware protects the ops API with HTTP Basic authentication against
// the operator accounts. As long as no operator exists, the API is open and
// every request acts as an admin.
func authMiddleware(users model.UsersStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		count, err := users.Count()
		if err != nil {
			return writeError(c, err)
		}
		if count == 0 {
			c.Locals(localsOperator, model.User{Role: model.OperatorAdmin})
			return c.Next()
		}
		username, password, ok := parseBasicAuth(c)
		if !ok {
			return unauthorized(c, "missing credentials")
		}
		u, err := users.Authenticate(username, password)
		if err != nil {
			return unauthorized(c, "invalid credentials")
		}
		c.Locals(localsOperator, *u)
		return c.Next()
	}
}

// requireRole rejects operators whose role does not include required
func requireRole(required model.OperatorRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, ok := c.Locals(localsOperator).(model.User)
		if !ok || !u.Role.Allows(required) {
			return c.Status(fiber.StatusForbidden).JSON(
				errorBody{
					Error:       model.KindForbidden.String(),
					Description: "requires the " + string(required) + " role",
				},
			)
		}
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, description string) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Basic realm=ops")
	return c.Status(fiber.StatusUnauthorized).JSON(
		errorBody{
			Error:       "unauthorized",
			Description: description,
		},
	)
}

// parseBasicAuth extracts Basic auth credentials from request headers
func parseBasicAuth(c *fiber.Ctx) (username, password string, ok bool) {
	auth := c.Get(fiber.HeaderAuthorization)
	const prefix = "Basic "
	if !strings.HasPrefix(auth, prefix) {
		return "", "", false
	}
	b, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(b), ":")
	return
}
