package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oelp-api/internal/service"
	"github.com/noah-isme/oelp-api/internal/utils"
)

// StudentLabHandler serves the student dashboard, lab pages and problem pages.
type StudentLabHandler struct {
	progress service.ProgressService
	problems service.ProblemService
	logger   zerolog.Logger
}

// NewStudentLabHandler constructs the handler.
func NewStudentLabHandler(progress service.ProgressService, problems service.ProblemService, logger zerolog.Logger) *StudentLabHandler {
	return &StudentLabHandler{
		progress: progress,
		problems: problems,
		logger:   logger.With().Str("component", "student_lab_handler").Logger(),
	}
}

// Register binds the student routes.
func (h *StudentLabHandler) Register(router fiber.Router) {
	router.Get("/labs", h.dashboard)
	router.Get("/labs/:labId", h.labDetail)
	router.Get("/questions/:questionId", h.question)
	router.Get("/progress/labs", h.labProgress)
}

func (h *StudentLabHandler) dashboard(c *fiber.Ctx) error {
	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	response, err := h.progress.Dashboard(requestContext(c), studentID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "dashboard retrieved", response)
}

func (h *StudentLabHandler) labDetail(c *fiber.Ctx) error {
	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}
	labID, err := parseUintParam(c, "labId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.progress.LabDetail(requestContext(c), studentID, labID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "lab retrieved", response)
}

func (h *StudentLabHandler) question(c *fiber.Ctx) error {
	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.problems.Question(requestContext(c), studentID, questionID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "question retrieved", response)
}

func (h *StudentLabHandler) labProgress(c *fiber.Ctx) error {
	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	response, err := h.progress.StudentLabProgress(requestContext(c), studentID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "progress retrieved", response)
}

func (h *StudentLabHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrLabNotFound), errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("student lab request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
