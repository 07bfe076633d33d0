package handlers

import (
	"bounty-quest/apperrors"
	"bounty-quest/logging"

	"github.com/gofiber/fiber/v2"
)

func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return fiber.StatusBadRequest
	case apperrors.KindNotFound:
		return fiber.StatusNotFound
	case apperrors.KindConflict:
		return fiber.StatusConflict
	case apperrors.KindExternal:
		return fiber.StatusBadGateway
	case apperrors.KindStore:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as {"error", "kind", "retryable"} with the status for its kind.
func respondError(c *fiber.Ctx, logger logging.Logger, err error) error {
	kind := apperrors.KindOf(err)
	status := statusFor(kind)
	if status >= fiber.StatusInternalServerError {
		logger.Error("request failed", "path", c.Path(), "kind", kind, "error", err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error":     apperrors.Public(err),
		"kind":      kind,
		"retryable": apperrors.IsRetryable(err),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":     message,
		"kind":      apperrors.KindValidation,
		"retryable": false,
	})
}

// ErrorHandler renders errors that escape a handler, such as fiber's own 404 and 405.
func ErrorHandler(logger logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if fe, ok := err.(*fiber.Error); ok {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		return respondError(c, logger, err)
	}
}
