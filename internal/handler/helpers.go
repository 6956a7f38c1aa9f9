package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-engine/internal/grading"
	"github.com/noah-isme/gema-exam-engine/internal/middleware"
	"github.com/noah-isme/gema-exam-engine/internal/service"
	"github.com/noah-isme/gema-exam-engine/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseQueryBool(c *fiber.Ctx, key string) (*bool, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func userIDFromContext(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}

func userRoleFromContext(c *fiber.Ctx) string {
	return middleware.RoleFromContext(c)
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	return service.ActivityActor{
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

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// kindStatus maps engine error kinds onto HTTP status codes.
var kindStatus = map[error]int{
	grading.ErrValidation:        fiber.StatusBadRequest,
	grading.ErrNotFound:          fiber.StatusNotFound,
	grading.ErrAlreadySubmitted:  fiber.StatusConflict,
	grading.ErrNotSubmitted:      fiber.StatusConflict,
	grading.ErrNotReady:          fiber.StatusConflict,
	grading.ErrAttemptNotAllowed: fiber.StatusTooManyRequests,
}

// sendServiceError renders err with the status matching its kind. Unknown
// errors are logged and reported as fallback.
func sendServiceError(c *fiber.Ctx, logger *zerolog.Logger, err error, fallback string) error {
	for kind, status := range kindStatus {
		if errors.Is(err, kind) {
			return utils.SendErrorKind(c, status, grading.KindOf(err), err.Error())
		}
	}

	switch {
	case isValidationError(err):
		return utils.SendErrorKind(c, fiber.StatusBadRequest, grading.ErrValidation.Error(), err.Error())
	case errors.Is(err, service.ErrQuestionSource):
		logger.Error().Err(err).Msg("question source failed")
		return utils.SendErrorKind(c, fiber.StatusBadGateway, "QuestionSourceError", "question generation failed")
	default:
		logger.Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
