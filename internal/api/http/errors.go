package httpapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-dashboard/internal/apperr"
	"github.com/i474232898/weather-dashboard/internal/session"
)

// ErrorHandler is the central error response. Unauthorized errors carry the
// login redirect; the session cookie is dropped only once the session itself
// is unauthenticated.
func ErrorHandler(opts Options) fiber.ErrorHandler {
	opts = opts.withDefaults()
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error":   true,
				"message": fe.Message,
			})
		}

		body := fiber.Map{
			"error":   true,
			"kind":    apperr.KindOf(err),
			"message": err.Error(),
		}
		if errors.Is(err, apperr.ErrUnauthorized) {
			body["redirect"] = opts.LoginPath
			if m := manager(c); m != nil && m.Snapshot().State == session.StateUnauthenticated {
				clearSessionCookie(c, opts)
			}
		}
		return c.Status(apperr.StatusOf(err)).JSON(body)
	}
}

// validationError turns validator output into a Validation error naming the
// offending fields.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("%s", err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email address", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}
