package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oelp-api/internal/service"
	"github.com/noah-isme/oelp-api/internal/utils"
)

// AdminAnalyticsHandler exposes leaderboard and per-student analytics to staff.
type AdminAnalyticsHandler struct {
	service service.AnalyticsService
	logger  zerolog.Logger
}

// NewAdminAnalyticsHandler constructs the handler.
func NewAdminAnalyticsHandler(service service.AnalyticsService, logger zerolog.Logger) *AdminAnalyticsHandler {
	return &AdminAnalyticsHandler{
		service: service,
		logger:  logger.With().Str("component", "admin_analytics_handler").Logger(),
	}
}

// Register attaches analytics routes to the router group.
func (h *AdminAnalyticsHandler) Register(router fiber.Router) {
	router.Get("/leaderboard", h.leaderboard)
	router.Get("/students/:studentId", h.studentReport)
}

func (h *AdminAnalyticsHandler) leaderboard(c *fiber.Ctx) error {
	labID, err := parseOptionalUintQuery(c, "lab_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid lab_id")
	}

	board, err := h.service.Leaderboard(requestContext(c), labID)
	if err != nil {
		if errors.Is(err, service.ErrLabNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to build leaderboard")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load analytics")
	}

	return utils.OK(c, board, "leaderboard retrieved", fiber.Map{"cache_hit": board.CacheHit})
}

func (h *AdminAnalyticsHandler) studentReport(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.service.StudentReport(requestContext(c), studentID)
	if err != nil {
		if errors.Is(err, service.ErrStudentNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("student_id", studentID).Msg("failed to build student report")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load analytics")
	}

	return utils.SendSuccess(c, "student report retrieved", report)
}
