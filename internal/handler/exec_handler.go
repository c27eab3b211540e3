package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oelp-api/internal/service"
	"github.com/noah-isme/oelp-api/internal/utils"
	"github.com/noah-isme/oelp-api/pkg/execution"
)

// Error details shown to students by the editor.
const (
	detailRunFailed        = "Execution timed out or failed"
	detailUnsupportedLang  = "Unsupported language"
	detailEnvironmentError = "Execution Environment Error"
)

// ExecHandler exposes the execution API consumed by the editor.
type ExecHandler struct {
	grading service.GradingService
	logger  zerolog.Logger
}

// NewExecHandler constructs the handler.
func NewExecHandler(grading service.GradingService, logger zerolog.Logger) *ExecHandler {
	return &ExecHandler{
		grading: grading,
		logger:  logger.With().Str("component", "exec_handler").Logger(),
	}
}

// Register wires the run and submit endpoints.
func (h *ExecHandler) Register(router fiber.Router) {
	router.Post("/run", h.run)
	router.Post("/submit", h.submit)
}

func (h *ExecHandler) run(c *fiber.Ctx) error {
	var payload execution.RunRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorDetail(c, fiber.StatusBadRequest, "invalid request body", "")
	}

	result, err := h.grading.Run(requestContext(c), payload)
	if err != nil {
		var validationErrors validator.ValidationErrors
		switch {
		case errors.As(err, &validationErrors):
			return utils.SendErrorDetail(c, fiber.StatusBadRequest, validationErrors.Error(), "")
		case errors.Is(err, service.ErrUnsupportedLanguage):
			return utils.SendErrorDetail(c, fiber.StatusBadRequest, "language not supported", detailUnsupportedLang)
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("language", payload.Language).Msg("run failed")
			return utils.SendErrorDetail(c, fiber.StatusInternalServerError, "run failed", detailRunFailed)
		}
	}

	return utils.SendSuccess(c, "run completed", result)
}

func (h *ExecHandler) submit(c *fiber.Ctx) error {
	var payload execution.SubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorDetail(c, fiber.StatusBadRequest, "invalid request body", "")
	}

	actor := actorFromContext(c)
	if actor.ID == 0 {
		return utils.SendErrorDetail(c, fiber.StatusUnauthorized, "unauthorized", "You must be logged in.")
	}

	result, err := h.grading.Submit(requestContext(c), actor, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission graded", result)
}

func (h *ExecHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.SendErrorDetail(c, fiber.StatusBadRequest, validationErrors.Error(), "")
	case errors.Is(err, service.ErrUnsupportedLanguage):
		return utils.SendErrorDetail(c, fiber.StatusBadRequest, "language not supported", detailUnsupportedLang)
	case errors.Is(err, service.ErrNoTestCases):
		return utils.SendErrorDetail(c, fiber.StatusNotFound, "no test cases", service.ErrNoTestCases.Error())
	case errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendErrorDetail(c, fiber.StatusNotFound, "question not found", "")
	case errors.Is(err, service.ErrSubmissionForbidden):
		return utils.SendErrorDetail(c, fiber.StatusForbidden, "forbidden", "")
	case errors.Is(err, service.ErrExecutionEnvironment):
		requestLogger(h.logger, c).Error().Err(err).Msg("grading environment failure")
		return utils.SendErrorDetail(c, fiber.StatusServiceUnavailable, "execution environment unavailable", detailEnvironmentError)
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("submission grading failed")
		return utils.SendErrorDetail(c, fiber.StatusInternalServerError, "internal server error", "")
	}
}
