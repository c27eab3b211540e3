package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/dto"
	"github.com/noah-isme/oelp-api/internal/models"
	"github.com/noah-isme/oelp-api/internal/repository"
)

var (
	// ErrFixtureStorageUnavailable indicates test cases cannot be stored.
	ErrFixtureStorageUnavailable = errors.New("fixture storage is not configured")
	// ErrFixtureUpload indicates a fixture upload failed and the question was rolled back.
	ErrFixtureUpload = errors.New("test case upload failed")
)

// Row warning reasons.
const (
	reasonMissingFile = "input and output files are both required"
	reasonEmptyInput  = "input file is empty"
	reasonTooLarge    = "fixture exceeds the maximum size"
	reasonNotText     = "fixtures must be plain text"
	reasonUnreadable  = "fixture could not be read"
)

const maxFixtureSize = 2 << 20

// QuestionService manages questions and their test case fixtures.
type QuestionService interface {
	Create(ctx context.Context, actor Actor, labID uint, payload dto.QuestionCreateRequest, rows []dto.TestCaseUpload) (dto.QuestionCreateResponse, error)
	List(ctx context.Context, labID uint) ([]dto.QuestionResponse, error)
	Delete(ctx context.Context, actor Actor, questionID uint) error
}

type questionService struct {
	labs        repository.LabRepository
	questions   repository.QuestionRepository
	storage     FixtureStorage
	leaderboard LeaderboardInvalidator
	validator   *validator.Validate
	titles      *bluemonday.Policy
	bodies      *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewQuestionService constructs the question authoring service. leaderboard may be nil.
func NewQuestionService(labs repository.LabRepository, questions repository.QuestionRepository, storage FixtureStorage, leaderboard LeaderboardInvalidator, validate *validator.Validate, logger zerolog.Logger) QuestionService {
	return &questionService{
		labs:        labs,
		questions:   questions,
		storage:     storage,
		leaderboard: leaderboard,
		validator:   validate,
		titles:      bluemonday.StrictPolicy(),
		bodies:      bluemonday.UGCPolicy(),
		logger:      logger.With().Str("component", "question_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/oelp-api/internal/service/question"),
	}
}

type validFixture struct {
	row    int
	input  []byte
	output []byte
}

func (s *questionService) Create(ctx context.Context, actor Actor, labID uint, payload dto.QuestionCreateRequest, rows []dto.TestCaseUpload) (dto.QuestionCreateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.QuestionCreateResponse{}, err
	}
	if len(rows) > 0 && s.storage == nil {
		return dto.QuestionCreateResponse{}, ErrFixtureStorageUnavailable
	}

	lab, err := ownedLab(ctx, s.labs, actor, labID)
	if err != nil {
		return dto.QuestionCreateResponse{}, err
	}

	title := strings.TrimSpace(s.titles.Sanitize(payload.Title))
	if title == "" {
		return dto.QuestionCreateResponse{}, ErrInvalidTitle
	}

	ctx, span := s.tracer.Start(ctx, "questions.create", trace.WithAttributes(
		attribute.Int64("question.lab_id", int64(lab.ID)),
		attribute.Int("question.rows", len(rows)),
	))
	defer span.End()

	fixtures, warnings := s.validateRows(rows)

	difficulty := payload.Difficulty
	if difficulty == "" {
		difficulty = models.DifficultyEasy
	}
	points := payload.Points
	if points <= 0 {
		points = models.DefaultQuestionPoints
	}

	question := models.Question{
		LabID:       lab.ID,
		Title:       title,
		Description: strings.TrimSpace(s.bodies.Sanitize(payload.Description)),
		Difficulty:  difficulty,
		Points:      points,
		StarterCode: payload.StarterCode,
	}
	if err := s.questions.Create(ctx, &question); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.QuestionCreateResponse{}, err
	}

	cases := make([]models.TestCase, 0, len(fixtures))
	var uploaded []string
	for i, fixture := range fixtures {
		testCase, paths, err := s.uploadFixture(ctx, lab.ID, question.ID, fixture)
		uploaded = append(uploaded, paths...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fixture upload failed")
			s.rollback(ctx, question.ID, uploaded)
			return dto.QuestionCreateResponse{}, fmt.Errorf("%w: row %d: %v", ErrFixtureUpload, fixture.row, err)
		}
		testCase.Position = i
		testCase.IsPublic = i == 0
		testCase.IsHidden = i > 0
		cases = append(cases, testCase)
	}

	if err := s.questions.CreateTestCases(ctx, cases); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.rollback(ctx, question.ID, uploaded)
		return dto.QuestionCreateResponse{}, err
	}

	invalidateLeaderboard(ctx, s.leaderboard, lab.ID)
	s.logger.Info().
		Uint("question_id", question.ID).
		Uint("lab_id", lab.ID).
		Int("test_cases", len(cases)).
		Int("skipped_rows", len(warnings)).
		Msg("question created")

	return dto.QuestionCreateResponse{
		Question: dto.NewQuestionResponse(question, int64(len(cases))),
		Warnings: warnings,
	}, nil
}

// validateRows keeps complete text fixtures. Rows are numbered from 1.
func (s *questionService) validateRows(rows []dto.TestCaseUpload) ([]validFixture, []dto.RowWarning) {
	fixtures := make([]validFixture, 0, len(rows))
	warnings := []dto.RowWarning{}

	for i, row := range rows {
		number := i + 1
		if row.Input == nil || row.Output == nil {
			warnings = append(warnings, dto.RowWarning{Row: number, Reason: reasonMissingFile})
			continue
		}
		if row.Input.Size == 0 {
			warnings = append(warnings, dto.RowWarning{Row: number, Reason: reasonEmptyInput})
			continue
		}

		input, reason := readTextFixture(row.Input)
		if reason == "" {
			var output []byte
			output, reason = readTextFixture(row.Output)
			if reason == "" {
				fixtures = append(fixtures, validFixture{row: number, input: input, output: output})
				continue
			}
		}
		warnings = append(warnings, dto.RowWarning{Row: number, Reason: reason})
	}

	return fixtures, warnings
}

func readTextFixture(file *multipart.FileHeader) ([]byte, string) {
	if file.Size > maxFixtureSize {
		return nil, reasonTooLarge
	}
	handle, err := file.Open()
	if err != nil {
		return nil, reasonUnreadable
	}
	defer handle.Close()

	data, err := io.ReadAll(io.LimitReader(handle, maxFixtureSize+1))
	if err != nil {
		return nil, reasonUnreadable
	}
	if len(data) > maxFixtureSize {
		return nil, reasonTooLarge
	}
	if !isTextFixture(data) {
		return nil, reasonNotText
	}
	return data, ""
}

// isTextFixture accepts text/plain and anything mimetype derives from it,
// such as CSV or JSON.
func isTextFixture(data []byte) bool {
	for detected := mimetype.Detect(data); detected != nil; detected = detected.Parent() {
		if detected.Is("text/plain") {
			return true
		}
	}
	return false
}

// uploadFixture stores both sides of a row and returns the paths written so
// far, also on failure.
func (s *questionService) uploadFixture(ctx context.Context, labID, questionID uint, fixture validFixture) (models.TestCase, []string, error) {
	inputPath := fmt.Sprintf("%d/%d/case_%d_in.txt", labID, questionID, fixture.row)
	outputPath := fmt.Sprintf("%d/%d/case_%d_out.txt", labID, questionID, fixture.row)

	inputURL, err := s.storage.Upload(ctx, inputPath, bytes.NewReader(fixture.input))
	if err != nil {
		return models.TestCase{}, nil, err
	}
	outputURL, err := s.storage.Upload(ctx, outputPath, bytes.NewReader(fixture.output))
	if err != nil {
		return models.TestCase{}, []string{inputPath}, err
	}

	return models.TestCase{
		QuestionID: questionID,
		InputPath:  inputPath,
		OutputPath: outputPath,
		InputURL:   inputURL,
		OutputURL:  outputURL,
	}, []string{inputPath, outputPath}, nil
}

// rollback removes a half created question and the fixtures already uploaded
// for it. Failures are logged; the caller reports the original error.
func (s *questionService) rollback(ctx context.Context, questionID uint, uploaded []string) {
	for _, name := range uploaded {
		if err := s.storage.Remove(ctx, name); err != nil {
			s.logger.Error().Err(err).Str("fixture", name).Msg("failed to remove fixture")
		}
	}
	if err := s.questions.Delete(ctx, questionID); err != nil {
		s.logger.Error().Err(err).Uint("question_id", questionID).Msg("failed to roll back question")
	}
}

func (s *questionService) List(ctx context.Context, labID uint) ([]dto.QuestionResponse, error) {
	if _, err := s.labs.GetByID(ctx, labID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLabNotFound
		}
		return nil, err
	}

	questions, err := s.questions.ListByLab(ctx, labID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(questions))
	for _, question := range questions {
		ids = append(ids, question.ID)
	}
	counts, err := s.questions.CountTestCases(ctx, ids)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.QuestionResponse, 0, len(questions))
	for _, question := range questions {
		responses = append(responses, dto.NewQuestionResponse(question, counts[question.ID]))
	}
	return responses, nil
}

func (s *questionService) Delete(ctx context.Context, actor Actor, questionID uint) error {
	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return err
	}
	if _, err := ownedLab(ctx, s.labs, actor, question.LabID); err != nil {
		return err
	}
	if err := s.questions.Delete(ctx, questionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return err
	}

	invalidateLeaderboard(ctx, s.leaderboard, question.LabID)
	s.logger.Info().Uint("question_id", questionID).Uint("actor_id", actor.ID).Msg("question deleted")
	return nil
}
