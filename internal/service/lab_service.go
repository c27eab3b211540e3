package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/dto"
	"github.com/noah-isme/oelp-api/internal/models"
	"github.com/noah-isme/oelp-api/internal/repository"
)

var (
	// ErrLabForbidden indicates the caller does not own the lab.
	ErrLabForbidden = errors.New("lab belongs to another professor")
	// ErrInvalidTitle indicates the title is empty once sanitised.
	ErrInvalidTitle = errors.New("title is required")
)

// LabService manages labs for professors.
type LabService interface {
	Create(ctx context.Context, actor Actor, payload dto.LabCreateRequest) (dto.LabResponse, error)
	List(ctx context.Context, actor Actor) ([]dto.LabResponse, error)
	Delete(ctx context.Context, actor Actor, labID uint) error
}

// LeaderboardInvalidator drops cached leaderboards affected by a lab.
type LeaderboardInvalidator interface {
	Invalidate(ctx context.Context, labID uint)
}

func invalidateLeaderboard(ctx context.Context, leaderboard LeaderboardInvalidator, labID uint) {
	if leaderboard != nil {
		leaderboard.Invalidate(ctx, labID)
	}
}

type labService struct {
	labs        repository.LabRepository
	questions   repository.QuestionRepository
	leaderboard LeaderboardInvalidator
	validator   *validator.Validate
	titles      *bluemonday.Policy
	bodies      *bluemonday.Policy
	logger      zerolog.Logger
}

// NewLabService constructs the lab authoring service. leaderboard may be nil.
func NewLabService(labs repository.LabRepository, questions repository.QuestionRepository, leaderboard LeaderboardInvalidator, validate *validator.Validate, logger zerolog.Logger) LabService {
	return &labService{
		labs:        labs,
		questions:   questions,
		leaderboard: leaderboard,
		validator:   validate,
		titles:      bluemonday.StrictPolicy(),
		bodies:      bluemonday.UGCPolicy(),
		logger:      logger.With().Str("component", "lab_service").Logger(),
	}
}

func (s *labService) Create(ctx context.Context, actor Actor, payload dto.LabCreateRequest) (dto.LabResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.LabResponse{}, err
	}

	title := strings.TrimSpace(s.titles.Sanitize(payload.Title))
	if title == "" {
		return dto.LabResponse{}, ErrInvalidTitle
	}

	lab := models.Lab{
		Title:       title,
		Description: strings.TrimSpace(s.bodies.Sanitize(payload.Description)),
		ProfessorID: actor.ID,
	}
	if err := s.labs.Create(ctx, &lab); err != nil {
		return dto.LabResponse{}, err
	}

	invalidateLeaderboard(ctx, s.leaderboard, lab.ID)
	s.logger.Info().Uint("lab_id", lab.ID).Uint("professor_id", actor.ID).Msg("lab created")

	return dto.NewLabResponse(lab, 0), nil
}

func (s *labService) List(ctx context.Context, actor Actor) ([]dto.LabResponse, error) {
	if strings.EqualFold(actor.Role, models.RoleAdmin) {
		labs, err := s.labs.List(ctx)
		if err != nil {
			return nil, err
		}
		refs, err := s.questions.ListRefs(ctx, nil)
		if err != nil {
			return nil, err
		}
		counts := make(map[uint]int64, len(labs))
		for _, ref := range refs {
			counts[ref.LabID]++
		}
		responses := make([]dto.LabResponse, 0, len(labs))
		for _, lab := range labs {
			responses = append(responses, dto.NewLabResponse(lab, counts[lab.ID]))
		}
		return responses, nil
	}

	summaries, err := s.labs.ListByProfessor(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.LabResponse, 0, len(summaries))
	for _, summary := range summaries {
		responses = append(responses, dto.NewLabResponse(summary.Lab, summary.QuestionCount))
	}
	return responses, nil
}

func (s *labService) Delete(ctx context.Context, actor Actor, labID uint) error {
	if _, err := ownedLab(ctx, s.labs, actor, labID); err != nil {
		return err
	}
	if err := s.labs.Delete(ctx, labID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLabNotFound
		}
		return err
	}

	invalidateLeaderboard(ctx, s.leaderboard, labID)
	s.logger.Info().Uint("lab_id", labID).Uint("actor_id", actor.ID).Msg("lab deleted")
	return nil
}

// ownedLab loads a lab the actor may edit. Admins may edit any lab.
func ownedLab(ctx context.Context, labs repository.LabRepository, actor Actor, labID uint) (models.Lab, error) {
	lab, err := labs.GetByID(ctx, labID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Lab{}, ErrLabNotFound
		}
		return models.Lab{}, err
	}
	if !strings.EqualFold(actor.Role, models.RoleAdmin) && lab.ProfessorID != actor.ID {
		return models.Lab{}, ErrLabForbidden
	}
	return lab, nil
}
