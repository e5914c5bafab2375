package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/marketplace/pkg/mylogger"
	"github.com/sakashimaa/marketplace/services/catalog/internal/service"
	"go.uber.org/zap"
)

func mapErrorStatus(err error) int {
	switch service.KindOf(err) {
	case service.KindNotFound:
		return fiber.StatusNotFound
	case service.KindValidation:
		return fiber.StatusBadRequest
	case service.KindConflict:
		return fiber.StatusConflict
	case service.KindCache:
		return fiber.StatusServiceUnavailable
	case service.KindUpload:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes the error response for a failed service call.
func (h *ProductHandler) fail(ctx context.Context, c *fiber.Ctx, msg string, err error, fields ...zap.Field) error {
	httpStatus := mapErrorStatus(err)
	fields = append(fields,
		zap.Int("http_status", httpStatus),
		zap.String("kind", service.KindOf(err).String()),
		zap.Error(err),
	)

	if httpStatus >= fiber.StatusInternalServerError {
		mylogger.Error(ctx, h.logger, msg, fields...)
	} else {
		mylogger.Warn(ctx, h.logger, msg, fields...)
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  service.KindOf(err).String(),
	})
}
