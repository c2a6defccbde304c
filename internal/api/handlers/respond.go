package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/domain"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/logger"
)

// respondError maps a domain error to its HTTP status. Dependency and unknown
// failures are logged server-side and surface only a generic message.
func respondError(c *fiber.Ctx, err error) error {
	kind := domain.KindOf(err)

	switch kind {
	case domain.KindValidation:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case domain.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case domain.KindQuotaExceeded:
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": err.Error()})
	case domain.KindUnauthorized:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case domain.KindDependency:
		logger.Error("Upstream dependency failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "a required service is unavailable, please retry",
		})
	default:
		logger.Error("Unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}
