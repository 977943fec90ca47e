package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/acadops/campus-api/internal/apperr"
	"github.com/acadops/campus-api/internal/middleware"
	"github.com/acadops/campus-api/internal/policy"
	"github.com/acadops/campus-api/internal/utils"
)

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func actorFromContext(c *fiber.Ctx) policy.Actor {
	return policy.Actor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := c.Params(name)
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

// respondError maps kinded business errors onto stable HTTP status codes.
// Anything unkinded is logged and hidden behind a generic 500.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case apperr.KindForbidden:
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case apperr.KindValidation:
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case apperr.KindConflict:
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	}

	requestLogger(logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
