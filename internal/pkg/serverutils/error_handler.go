package serverutils

import (
	"errors"

	"ai-factcheck-be/internal/pkg/logger"
	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/session"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case apperror.IsValidation(err):
		return fiber.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, apperror.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, session.ErrGenerationInFlight), errors.Is(err, session.ErrNoCheckpoint),
		errors.Is(err, session.ErrNoConversation):
		return fiber.StatusConflict
	case errors.Is(err, apperror.ErrUpstream):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func ErrorHandlerMiddleware(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		code := StatusFor(err)
		message := err.Error()

		if code >= fiber.StatusInternalServerError {
			log.Error("HTTP", "Request failed", map[string]interface{}{
				"method": ctx.Method(),
				"path":   ctx.Path(),
				"error":  err.Error(),
			})
			if code == fiber.StatusInternalServerError {
				message = "Internal server error"
			}
		}

		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}
