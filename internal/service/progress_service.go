package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/dto"
	"github.com/noah-isme/oelp-api/internal/grading"
	"github.com/noah-isme/oelp-api/internal/models"
	"github.com/noah-isme/oelp-api/internal/observability"
	"github.com/noah-isme/oelp-api/internal/repository"
)

// ErrLabNotFound indicates the lab cannot be located.
var ErrLabNotFound = errors.New("lab not found")

// ProgressService produces the student facing progress views.
type ProgressService interface {
	Dashboard(ctx context.Context, studentID uint) (dto.DashboardResponse, error)
	LabDetail(ctx context.Context, studentID, labID uint) (dto.LabDetailResponse, error)
	StudentLabProgress(ctx context.Context, studentID uint) (dto.StudentProgressResponse, error)
}

type progressService struct {
	labs        repository.LabRepository
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	progress    repository.ProgressRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
}

// NewProgressService builds the progress aggregator service.
func NewProgressService(labs repository.LabRepository, questions repository.QuestionRepository, submissions repository.SubmissionRepository, progress repository.ProgressRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ProgressService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &progressService{
		labs:        labs,
		questions:   questions,
		submissions: submissions,
		progress:    progress,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "progress_service").Logger(),
	}
}

func (s *progressService) Dashboard(ctx context.Context, studentID uint) (dto.DashboardResponse, error) {
	labs, scopes, err := loadLabScopes(ctx, s.labs, s.questions)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	rows, err := s.progress.ListByStudent(ctx, studentID, nil)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	progress := grading.DashboardProgress(scopes, toProgressRecords(rows))

	response := dto.DashboardResponse{Labs: make([]dto.DashboardLab, 0, len(progress))}
	for i, lab := range progress {
		response.Labs = append(response.Labs, dto.DashboardLab{
			LabID:       lab.LabID,
			Title:       lab.Title,
			Description: labs[i].Description,
			Completed:   lab.Solved,
			Total:       lab.Total,
			Percent:     lab.Pct,
		})
		response.CompletedQuestions += lab.Solved
		response.TotalQuestions += lab.Total
	}
	response.OverallPercent = grading.Percent(response.CompletedQuestions, response.TotalQuestions)

	return response, nil
}

func (s *progressService) LabDetail(ctx context.Context, studentID, labID uint) (dto.LabDetailResponse, error) {
	lab, err := s.labs.GetByID(ctx, labID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.LabDetailResponse{}, ErrLabNotFound
		}
		return dto.LabDetailResponse{}, err
	}

	questions, err := s.questions.ListByLab(ctx, labID)
	if err != nil {
		return dto.LabDetailResponse{}, err
	}

	ids := make([]uint, 0, len(questions))
	for _, question := range questions {
		ids = append(ids, question.ID)
	}

	rows, err := s.progress.ListByStudent(ctx, studentID, ids)
	if err != nil {
		return dto.LabDetailResponse{}, err
	}

	byQuestion := make(map[uint][]grading.ProgressRecord, len(rows))
	for _, record := range toProgressRecords(rows) {
		byQuestion[record.QuestionID] = append(byQuestion[record.QuestionID], record)
	}

	response := dto.LabDetailResponse{
		LabID:       lab.ID,
		Title:       lab.Title,
		Description: lab.Description,
		Questions:   make([]dto.LabQuestionState, 0, len(questions)),
		Total:       len(questions),
	}
	for _, question := range questions {
		state := grading.QuestionState(byQuestion[question.ID])
		if state == grading.ProgressCompleted {
			response.Completed++
		}
		response.Questions = append(response.Questions, dto.LabQuestionState{
			QuestionID: question.ID,
			Title:      question.Title,
			Difficulty: question.Difficulty,
			Points:     question.Points,
			Status:     state,
		})
	}

	return response, nil
}

func (s *progressService) StudentLabProgress(ctx context.Context, studentID uint) (dto.StudentProgressResponse, error) {
	_, scopes, err := loadLabScopes(ctx, s.labs, s.questions)
	if err != nil {
		return dto.StudentProgressResponse{}, err
	}

	rows, err := s.submissions.ListByStudent(ctx, studentID)
	if err != nil {
		return dto.StudentProgressResponse{}, err
	}
	records := toSubmissionRecords(rows)

	response := dto.StudentProgressResponse{StudentID: studentID, Labs: make([]grading.LabProgress, 0, len(scopes))}
	for _, scope := range scopes {
		response.Labs = append(response.Labs, s.labProgress(ctx, studentID, scope, records))
	}
	return response, nil
}

// labProgress serves one lab from the cache. The key tracks both the newest
// submission and the lab's question set, so entries never go stale.
func (s *progressService) labProgress(ctx context.Context, studentID uint, scope grading.LabScope, records []grading.SubmissionRecord) grading.LabProgress {
	key := grading.ProgressCacheKey(studentID, scope, grading.LatestSubmission(scope, records))

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Result()
		switch {
		case err == nil:
			var progress grading.LabProgress
			if unmarshalErr := json.Unmarshal([]byte(cached), &progress); unmarshalErr == nil {
				observability.AnalyticsCacheLookups().WithLabelValues("progress", "hit").Inc()
				return progress
			}
		case errors.Is(err, redis.Nil):
		default:
			s.logger.Warn().Err(err).Msg("failed to read progress cache")
		}
		observability.AnalyticsCacheLookups().WithLabelValues("progress", "miss").Inc()
	}

	progress := grading.AggregateLab(scope, records, grading.ProgressVocabulary)

	if s.cache != nil {
		if payload, err := json.Marshal(progress); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store progress cache")
			}
		}
	}

	return progress
}

// ProblemService assembles the problem page.
type ProblemService interface {
	Question(ctx context.Context, studentID, questionID uint) (dto.ProblemResponse, error)
}

const maxSampleCases = 2

type problemService struct {
	labs        repository.LabRepository
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	progress    repository.ProgressRepository
	storage     FixtureStorage
	logger      zerolog.Logger
}

// NewProblemService constructs the problem page service. storage may be nil,
// in which case samples are omitted.
func NewProblemService(labs repository.LabRepository, questions repository.QuestionRepository, submissions repository.SubmissionRepository, progress repository.ProgressRepository, storage FixtureStorage, logger zerolog.Logger) ProblemService {
	return &problemService{
		labs:        labs,
		questions:   questions,
		submissions: submissions,
		progress:    progress,
		storage:     storage,
		logger:      logger.With().Str("component", "problem_service").Logger(),
	}
}

func (s *problemService) Question(ctx context.Context, studentID, questionID uint) (dto.ProblemResponse, error) {
	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ProblemResponse{}, ErrQuestionNotFound
		}
		return dto.ProblemResponse{}, err
	}

	labTitle := dto.UnknownLabTitle
	if lab, err := s.labs.GetByID(ctx, question.LabID); err == nil {
		labTitle = lab.Title
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.ProblemResponse{}, err
	}

	counts, err := s.questions.CountTestCases(ctx, []uint{question.ID})
	if err != nil {
		return dto.ProblemResponse{}, err
	}

	rows, err := s.progress.ListByStudent(ctx, studentID, []uint{question.ID})
	if err != nil {
		return dto.ProblemResponse{}, err
	}

	response := dto.ProblemResponse{
		Question: dto.NewQuestionResponse(question, counts[question.ID]),
		LabTitle: labTitle,
		Samples:  s.samples(ctx, question.ID),
		Status:   grading.QuestionState(toProgressRecords(rows)),
	}

	latest, err := s.submissions.LatestForQuestion(ctx, studentID, question.ID)
	switch {
	case err == nil:
		response.LastSubmissionCode = latest.Code
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return dto.ProblemResponse{}, err
	}

	return response, nil
}

func (s *problemService) samples(ctx context.Context, questionID uint) []dto.SampleCase {
	samples := []dto.SampleCase{}
	if s.storage == nil {
		return samples
	}

	cases, err := s.questions.ListPublicTestCases(ctx, questionID, maxSampleCases)
	if err != nil {
		s.logger.Warn().Err(err).Uint("question_id", questionID).Msg("failed to list sample cases")
		return samples
	}

	for _, tc := range cases {
		sample, err := s.loadSample(ctx, tc)
		if err != nil {
			s.logger.Warn().Err(err).Uint("test_case_id", tc.ID).Msg("skipping unreadable sample case")
			continue
		}
		samples = append(samples, sample)
	}
	return samples
}

func (s *problemService) loadSample(ctx context.Context, tc models.TestCase) (dto.SampleCase, error) {
	input, err := s.storage.Download(ctx, tc.InputURL)
	if err != nil {
		return dto.SampleCase{}, err
	}
	output, err := s.storage.Download(ctx, tc.OutputURL)
	if err != nil {
		return dto.SampleCase{}, err
	}
	return dto.SampleCase{TestCaseID: tc.ID, Input: string(input), Output: string(output)}, nil
}
