package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oelp-api/internal/dto"
	"github.com/noah-isme/oelp-api/internal/middleware"
	"github.com/noah-isme/oelp-api/internal/service"
	"github.com/noah-isme/oelp-api/internal/utils"
)

// DraftHandler stores unsubmitted editor content per student and question.
type DraftHandler struct {
	drafts service.DraftService
	logger zerolog.Logger
}

// NewDraftHandler constructs the handler.
func NewDraftHandler(drafts service.DraftService, logger zerolog.Logger) *DraftHandler {
	return &DraftHandler{
		drafts: drafts,
		logger: logger.With().Str("component", "draft_handler").Logger(),
	}
}

// Register binds draft routes.
func (h *DraftHandler) Register(router fiber.Router) {
	opts := middleware.AuthOptions{Role: middleware.AuthRoleAny}
	router.Get("/:questionId", middleware.WithAuth(h.get, opts))
	router.Put("/:questionId", middleware.WithAuth(h.save, opts))
	router.Delete("/:questionId", middleware.WithAuth(h.delete, opts))
}

func (h *DraftHandler) get(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	code, found, err := h.drafts.Get(requestContext(c), userIDFromContext(c), questionID)
	if err != nil {
		return h.handleError(c, err)
	}
	if !found {
		return utils.SendError(c, fiber.StatusNotFound, "draft not found")
	}
	return utils.SendSuccess(c, "draft retrieved", dto.DraftResponse{QuestionID: questionID, Code: code})
}

func (h *DraftHandler) save(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.DraftRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.drafts.Save(requestContext(c), userIDFromContext(c), questionID, payload.Code); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "draft saved", dto.DraftResponse{QuestionID: questionID, Code: payload.Code})
}

func (h *DraftHandler) delete(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.drafts.Delete(requestContext(c), userIDFromContext(c), questionID); err != nil {
		return h.handleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *DraftHandler) handleError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrDraftTooLarge) {
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	}
	requestLogger(h.logger, c).Error().Err(err).Msg("draft operation failed")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
