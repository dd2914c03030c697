package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/sse2016-gomoku-fun/fun-portal/services"
)

// renderError maps the service error taxonomy onto HTTP statuses. Auth
// failures stay generic so nothing leaks about the expected token.
func renderError(c *fiber.Ctx, err error) error {
	var (
		validationErr *services.ValidationError
		authErr       *services.AuthError
		policyErr     *services.PolicyError
		notFoundErr   *services.NotFoundError
		stateErr      *services.StateError
	)
	switch {
	case errors.As(err, &validationErr):
		return renderErrorJSON(c, fiber.StatusBadRequest, "ValidationError", validationErr.Msg)
	case errors.As(err, &authErr):
		return renderErrorJSON(c, fiber.StatusUnauthorized, "AuthError", "rejected")
	case errors.As(err, &policyErr):
		return renderErrorJSON(c, fiber.StatusForbidden, "PolicyError", policyErr.Msg)
	case errors.As(err, &notFoundErr):
		return renderErrorJSON(c, fiber.StatusNotFound, "NotFoundError", notFoundErr.Msg)
	case errors.As(err, &stateErr):
		return renderErrorJSON(c, fiber.StatusConflict, "StateError", stateErr.Msg)
	}
	log.Printf("[HTTP] Internal error on %s: %v", c.Path(), err)
	return renderErrorJSON(c, fiber.StatusInternalServerError, "InternalError", "internal error")
}

func renderErrorJSON(c *fiber.Ctx, status int, name, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"err":    true,
		"status": status,
		"name":   name,
		"msg":    msg,
	})
}

// requireFormValues pulls mandatory form fields, rejecting the request
// before it can reach the state machines with partial input.
func requireFormValues(c *fiber.Ctx, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		v := c.FormValue(key)
		if v == "" {
			return nil, &services.ValidationError{Msg: "Missing required parameter '" + key + "'"}
		}
		out[key] = v
	}
	return out, nil
}
