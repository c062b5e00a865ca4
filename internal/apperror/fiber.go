package apperror

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// FiberErrorHandler renders handler errors as JSON. Classified errors keep
// their kind, message and details; storage failures are logged and reported
// without internals.
func FiberErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error": fe.Message,
			})
		}

		var ae *Error
		if errors.As(err, &ae) && ae.Kind != StorageError {
			body := fiber.Map{
				"error": ae.Message,
				"code":  ae.Kind,
			}
			if len(ae.Details) > 0 {
				body["details"] = ae.Details
			}
			if Retryable(ae) {
				body["retryable"] = true
			}
			return c.Status(HTTPStatus(ae.Kind)).JSON(body)
		}

		log.Error("unexpected error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":     "Unexpected server error",
			"code":      StorageError,
			"retryable": true,
		})
	}
}
