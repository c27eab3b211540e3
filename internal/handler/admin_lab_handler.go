package handler

import (
	"errors"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oelp-api/internal/dto"
	"github.com/noah-isme/oelp-api/internal/service"
	"github.com/noah-isme/oelp-api/internal/utils"
)

// Multipart fields carrying the paired test case files.
const (
	formInputFiles  = "input_files"
	formOutputFiles = "output_files"
)

// AdminLabHandler exposes lab and question authoring to staff.
type AdminLabHandler struct {
	labs      service.LabService
	questions service.QuestionService
	logger    zerolog.Logger
}

// NewAdminLabHandler constructs the handler.
func NewAdminLabHandler(labs service.LabService, questions service.QuestionService, logger zerolog.Logger) *AdminLabHandler {
	return &AdminLabHandler{
		labs:      labs,
		questions: questions,
		logger:    logger.With().Str("component", "admin_lab_handler").Logger(),
	}
}

// Register binds authoring routes under the admin group.
func (h *AdminLabHandler) Register(router fiber.Router) {
	router.Post("/labs", h.createLab)
	router.Get("/labs", h.listLabs)
	router.Delete("/labs/:labId", h.deleteLab)
	router.Get("/labs/:labId/questions", h.listQuestions)
	router.Post("/labs/:labId/questions", h.createQuestion)
	router.Delete("/questions/:questionId", h.deleteQuestion)
}

func (h *AdminLabHandler) createLab(c *fiber.Ctx) error {
	var payload dto.LabCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	lab, err := h.labs.Create(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "lab created", lab)
}

func (h *AdminLabHandler) listLabs(c *fiber.Ctx) error {
	labs, err := h.labs.List(requestContext(c), actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "labs retrieved", labs)
}

func (h *AdminLabHandler) deleteLab(c *fiber.Ctx) error {
	labID, err := parseUintParam(c, "labId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.labs.Delete(requestContext(c), actorFromContext(c), labID); err != nil {
		return h.handleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminLabHandler) listQuestions(c *fiber.Ctx) error {
	labID, err := parseUintParam(c, "labId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	questions, err := h.questions.List(requestContext(c), labID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "questions retrieved", questions)
}

func (h *AdminLabHandler) createQuestion(c *fiber.Ctx) error {
	labID, err := parseUintParam(c, "labId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.QuestionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid form payload")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form required")
	}

	response, err := h.questions.Create(requestContext(c), actorFromContext(c), labID, payload, pairUploads(form))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "question created", response)
}

func (h *AdminLabHandler) deleteQuestion(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.questions.Delete(requestContext(c), actorFromContext(c), questionID); err != nil {
		return h.handleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminLabHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case errors.Is(err, service.ErrInvalidTitle):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrLabNotFound), errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrLabForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	case errors.Is(err, service.ErrFixtureStorageUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrFixtureUpload):
		requestLogger(h.logger, c).Error().Err(err).Msg("test case upload failed")
		return utils.SendError(c, fiber.StatusBadGateway, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("authoring operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

// pairUploads zips the input and output file lists by position. A row with
// only one side keeps a nil for the other so it can be reported as skipped.
func pairUploads(form *multipart.Form) []dto.TestCaseUpload {
	inputs := form.File[formInputFiles]
	outputs := form.File[formOutputFiles]

	count := len(inputs)
	if len(outputs) > count {
		count = len(outputs)
	}

	rows := make([]dto.TestCaseUpload, count)
	for i := range rows {
		if i < len(inputs) {
			rows[i].Input = inputs[i]
		}
		if i < len(outputs) {
			rows[i].Output = outputs[i]
		}
	}
	return rows
}
