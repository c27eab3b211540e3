package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/dto"
	"github.com/noah-isme/oelp-api/internal/grading"
	"github.com/noah-isme/oelp-api/internal/models"
	"github.com/noah-isme/oelp-api/internal/observability"
	"github.com/noah-isme/oelp-api/internal/repository"
)

// ErrStudentNotFound indicates the student profile cannot be located.
var ErrStudentNotFound = errors.New("student not found")

const leaderboardAllKey = "leaderboard:all"

// AnalyticsService aggregates leaderboards and student reports for staff.
type AnalyticsService interface {
	Leaderboard(ctx context.Context, labID *uint) (dto.LeaderboardResponse, error)
	StudentReport(ctx context.Context, studentID uint) (dto.StudentReportResponse, error)
	Invalidate(ctx context.Context, labID uint)
}

type analyticsService struct {
	profiles    repository.ProfileRepository
	labs        repository.LabRepository
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAnalyticsService constructs the analytics service. Cached leaderboards
// are dropped whenever events reports a graded submission.
func NewAnalyticsService(profiles repository.ProfileRepository, labs repository.LabRepository, questions repository.QuestionRepository, submissions repository.SubmissionRepository, events SubmissionEvents, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) AnalyticsService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	service := &analyticsService{
		profiles:    profiles,
		labs:        labs,
		questions:   questions,
		submissions: submissions,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "analytics_service").Logger(),
		now:         time.Now,
	}

	if events != nil {
		events.OnGraded(func(event SubmissionGradedEvent) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			service.Invalidate(ctx, event.LabID)
		})
	}

	return service
}

func leaderboardKey(labID *uint) string {
	if labID == nil {
		return leaderboardAllKey
	}
	return fmt.Sprintf("leaderboard:lab:%d", *labID)
}

func (s *analyticsService) Leaderboard(ctx context.Context, labID *uint) (dto.LeaderboardResponse, error) {
	cacheKey := leaderboardKey(labID)
	tracer := otel.Tracer("github.com/noah-isme/oelp-api/internal/service/analytics")
	ctx, span := tracer.Start(ctx, "analytics.leaderboard")
	span.SetAttributes(attribute.String("analytics.cache_key", cacheKey))
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var response dto.LeaderboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				response.CacheHit = true
				span.SetAttributes(attribute.Bool("analytics.cache_hit", true))
				observability.AnalyticsCacheLookups().WithLabelValues("leaderboard", "hit").Inc()
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read leaderboard cache")
		}
		observability.AnalyticsCacheLookups().WithLabelValues("leaderboard", "miss").Inc()
	}

	var (
		roster []models.Profile
		rows   []repository.SubmissionRow
		total  int64
	)
	labTitle := dto.AllLabsTitle

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		roster, err = s.profiles.ListByRole(groupCtx, models.RoleStudent)
		return err
	})
	group.Go(func() error {
		var err error
		rows, err = s.submissions.ListForScope(groupCtx, labID)
		return err
	})
	group.Go(func() error {
		var err error
		total, err = s.questions.Count(groupCtx, labID)
		return err
	})
	if labID != nil {
		group.Go(func() error {
			lab, err := s.labs.GetByID(groupCtx, *labID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrLabNotFound
				}
				return err
			}
			labTitle = lab.Title
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.LeaderboardResponse{}, err
	}

	students := make([]grading.Student, 0, len(roster))
	for _, profile := range roster {
		students = append(students, grading.Student{ID: profile.ID, Name: profile.DisplayName(), Email: profile.Email})
	}

	leaderboard := grading.BuildLeaderboard(students, toSubmissionRecords(rows), int(total))

	response := dto.LeaderboardResponse{
		LabID:          labID,
		LabTitle:       labTitle,
		TotalQuestions: int(total),
		Entries:        dto.NewLeaderboardEntries(leaderboard),
		Summary:        dto.NewLeaderboardSummary(grading.Summarize(leaderboard, len(students))),
		GeneratedAt:    s.now().UTC(),
	}
	span.SetAttributes(
		attribute.Int("analytics.students", len(students)),
		attribute.Int("analytics.submissions", len(rows)),
	)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store leaderboard cache")
			}
		}
	}

	return response, nil
}

// Invalidate drops the unscoped leaderboard and the one for labID.
func (s *analyticsService) Invalidate(ctx context.Context, labID uint) {
	if s.cache == nil {
		return
	}
	keys := []string{leaderboardAllKey}
	if labID != 0 {
		keys = append(keys, leaderboardKey(&labID))
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("lab_id", labID).Msg("failed to invalidate leaderboard cache")
	}
}

func (s *analyticsService) StudentReport(ctx context.Context, studentID uint) (dto.StudentReportResponse, error) {
	profile, err := s.profiles.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StudentReportResponse{}, ErrStudentNotFound
		}
		return dto.StudentReportResponse{}, err
	}

	labs, scopes, err := loadLabScopes(ctx, s.labs, s.questions)
	if err != nil {
		return dto.StudentReportResponse{}, err
	}

	submissions, err := s.submissions.ListDetailedByStudent(ctx, studentID)
	if err != nil {
		return dto.StudentReportResponse{}, err
	}

	labTitles := make(map[uint]string, len(labs))
	for _, lab := range labs {
		labTitles[lab.ID] = lab.Title
	}

	records := make([]grading.SubmissionRecord, 0, len(submissions))
	reports := make([]dto.SubmissionReport, 0, len(submissions))
	for _, submission := range submissions {
		score := submission.TotalScore
		records = append(records, grading.SubmissionRecord{
			ID:          submission.ID,
			StudentID:   submission.StudentID,
			QuestionID:  submission.QuestionID,
			LabID:       submission.Question.LabID,
			Status:      submission.Status,
			Score:       &score,
			SubmittedAt: submission.SubmittedAt,
		})

		labTitle, ok := labTitles[submission.Question.LabID]
		if !ok {
			labTitle = dto.UnknownLabTitle
		}
		reports = append(reports, dto.SubmissionReport{
			ID:            submission.ID,
			QuestionID:    submission.QuestionID,
			QuestionTitle: submission.Question.Title,
			LabID:         submission.Question.LabID,
			LabTitle:      labTitle,
			Language:      submission.Language,
			Status:        submission.Status,
			TotalScore:    submission.TotalScore,
			MaxScore:      submission.MaxScore,
			Code:          submission.Code,
			SubmittedAt:   submission.SubmittedAt,
		})
	}

	return dto.StudentReportResponse{
		Student: dto.StudentIdentity{
			ID:    profile.ID,
			Name:  profile.DisplayName(),
			Email: profile.Email,
		},
		Labs:        grading.AggregateStudent(scopes, records, grading.ProgressVocabulary),
		Submissions: reports,
	}, nil
}
