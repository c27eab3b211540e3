package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/models"
	"github.com/noah-isme/oelp-api/internal/observability"
	"github.com/noah-isme/oelp-api/internal/repository"
	dockerexec "github.com/noah-isme/oelp-api/pkg/docker"
	"github.com/noah-isme/oelp-api/pkg/execution"
)

var (
	// ErrUnsupportedLanguage indicates the requested language is not allowed.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrQuestionNotFound indicates the question cannot be located.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNoTestCases indicates no usable test case exists for the question.
	ErrNoTestCases = errors.New("No test cases found.")
	// ErrSubmissionForbidden indicates the caller may not submit for the student.
	ErrSubmissionForbidden = errors.New("forbidden")
	// ErrExecutionEnvironment indicates the sandbox itself failed.
	ErrExecutionEnvironment = errors.New("Execution Environment Error")
)

// Actor is the authenticated caller.
type Actor struct {
	ID   uint
	Role string
}

// IsStaff reports whether the actor may act on behalf of students.
func (a Actor) IsStaff() bool {
	role := strings.ToLower(strings.TrimSpace(a.Role))
	return role == models.RoleAdmin || role == models.RoleProfessor || role == "teacher"
}

// GradingService runs code and grades submissions inside sandbox containers.
type GradingService interface {
	Run(ctx context.Context, req execution.RunRequest) (execution.RunResult, error)
	Submit(ctx context.Context, actor Actor, req execution.SubmitRequest) (execution.SubmitResult, error)
}

// GradingConfig describes execution configuration knobs.
type GradingConfig struct {
	ExecutionTimeout time.Duration
	MemoryLimitMB    int
	CPUShares        int
	WorkspaceRoot    string
	PointsPerCase    int
	Parallelism      int
}

type languageConfig struct {
	Image    string
	FileName string
	Compile  []string
	Run      string
	Env      []string
}

var languageConfigs = map[string]languageConfig{
	"python": {
		Image:    "python:3.11-alpine",
		FileName: "main.py",
		Compile:  []string{"python", "-m", "py_compile", "main.py"},
		Run:      "python main.py",
	},
	"javascript": {
		Image:    "node:20-alpine",
		FileName: "main.js",
		Compile:  []string{"node", "--check", "main.js"},
		Run:      "node main.js",
	},
	"go": {
		Image:    "golang:1.22-alpine",
		FileName: "main.go",
		Compile:  []string{"sh", "-c", "go build -o app main.go"},
		Run:      "./app",
		Env:      []string{"GOCACHE=/tmp/gocache", "GOPATH=/tmp/go", "CGO_ENABLED=0"},
	},
}

type fixture struct {
	testCase models.TestCase
	input    string
	expected string
}

type gradingService struct {
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	storage     FixtureStorage
	executor    dockerexec.Executor
	events      SubmissionEvents
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	config      GradingConfig
	languages   map[string]languageConfig
	now         func() time.Time
}

// NewGradingService constructs the grading backend.
func NewGradingService(questions repository.QuestionRepository, submissions repository.SubmissionRepository, storage FixtureStorage, executor dockerexec.Executor, events SubmissionEvents, validate *validator.Validate, logger zerolog.Logger, cfg GradingConfig) GradingService {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	if cfg.PointsPerCase <= 0 {
		cfg.PointsPerCase = 10
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	if events == nil {
		events = NopSubmissionEvents{}
	}

	return &gradingService{
		questions:   questions,
		submissions: submissions,
		storage:     storage,
		executor:    executor,
		events:      events,
		validator:   validate,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/oelp-api/internal/service"),
		config:      cfg,
		now:         time.Now,
		languages:   languageConfigs,
	}
}

func (s *gradingService) language(name string) (string, languageConfig, error) {
	language := strings.ToLower(strings.TrimSpace(name))
	cfg, ok := s.languages[language]
	if !ok {
		return "", languageConfig{}, ErrUnsupportedLanguage
	}
	return language, cfg, nil
}

func (s *gradingService) Run(ctx context.Context, req execution.RunRequest) (execution.RunResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return execution.RunResult{}, err
	}
	language, langCfg, err := s.language(req.Language)
	if err != nil {
		return execution.RunResult{}, err
	}

	ctx, span := s.tracer.Start(ctx, "grading.run", trace.WithAttributes(attribute.String("grading.language", language)))
	defer span.End()

	workspace, err := s.prepareWorkspace(langCfg, req.Code)
	if err != nil {
		return execution.RunResult{}, err
	}
	defer os.RemoveAll(workspace)

	if compileErr, elapsed, err := s.compile(ctx, workspace, langCfg); err != nil {
		s.recordFailure(span, err)
		return execution.RunResult{}, err
	} else if compileErr != "" {
		observability.ExecutionRequests().WithLabelValues("run", "compilation_error").Inc()
		return execution.RunResult{Status: execution.RunCompilationError, Error: compileErr, Time: seconds(elapsed)}, nil
	}

	if err := os.WriteFile(filepath.Join(workspace, "input.txt"), []byte(req.CustomInput), 0o600); err != nil {
		return execution.RunResult{}, fmt.Errorf("write input: %w", err)
	}

	result, err := s.execute(ctx, workspace, langCfg, []string{"sh", "-c", langCfg.Run + " < input.txt"})
	if err != nil {
		s.recordFailure(span, err)
		return execution.RunResult{}, err
	}

	status := classifyRun(result)
	observability.ExecutionRequests().WithLabelValues("run", strings.ToLower(strings.ReplaceAll(status, " ", "_"))).Inc()

	run := execution.RunResult{Status: status, Output: result.Stdout, Time: seconds(result.Duration)}
	if status != execution.RunSuccess {
		run.Error = strings.TrimSpace(result.Stderr)
	}
	return run, nil
}

func (s *gradingService) Submit(ctx context.Context, actor Actor, req execution.SubmitRequest) (execution.SubmitResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return execution.SubmitResult{}, err
	}

	studentID, err := resolveStudent(actor, req.StudentID)
	if err != nil {
		return execution.SubmitResult{}, err
	}

	language, langCfg, err := s.language(req.Language)
	if err != nil {
		return execution.SubmitResult{}, err
	}

	ctx, span := s.tracer.Start(ctx, "grading.submit", trace.WithAttributes(
		attribute.String("grading.language", language),
		attribute.Int64("grading.question_id", int64(req.QuestionID)),
	))
	defer span.End()

	question, err := s.questions.GetByID(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return execution.SubmitResult{}, ErrQuestionNotFound
		}
		return execution.SubmitResult{}, err
	}

	cases, err := s.questions.ListTestCases(ctx, question.ID)
	if err != nil {
		return execution.SubmitResult{}, err
	}

	fixtures := s.loadFixtures(ctx, cases)
	if len(fixtures) == 0 {
		return execution.SubmitResult{}, ErrNoTestCases
	}

	workspace, err := s.prepareWorkspace(langCfg, req.Code)
	if err != nil {
		return execution.SubmitResult{}, err
	}
	defer os.RemoveAll(workspace)

	points := s.config.PointsPerCase
	if question.Points > 0 {
		points = question.Points
	}

	results, compileErr, err := s.grade(ctx, workspace, langCfg, fixtures, points)
	if err != nil {
		s.recordFailure(span, err)
		observability.ExecutionRequests().WithLabelValues("submit", "environment_error").Inc()
		return execution.SubmitResult{}, err
	}

	passed := 0
	for _, result := range results {
		if result.Status == execution.ResultPassed {
			passed++
		}
	}
	totalScore := float64(points * passed)
	maxScore := float64(points * len(results))

	progressStatus := models.ProgressStatusInProgress
	if execution.AllPassed(results) {
		progressStatus = models.ProgressStatusCompleted
	}

	details := datatypes.JSONMap{
		"passed":       passed,
		"cases":        len(results),
		"skipped":      len(cases) - len(fixtures),
		"lab_id":       question.LabID,
		"submitted_by": actor.ID,
	}
	if compileErr != "" {
		details["compile_error"] = compileErr
	}

	submission := models.Submission{
		StudentID:   studentID,
		QuestionID:  question.ID,
		Language:    language,
		Code:        req.Code,
		Status:      models.SubmissionStatusCompleted,
		TotalScore:  totalScore,
		MaxScore:    maxScore,
		Details:     details,
		SubmittedAt: s.now().UTC(),
	}

	rows := make([]models.TestCaseResult, 0, len(results))
	for _, result := range results {
		rows = append(rows, models.TestCaseResult{
			TestCaseID:     result.TestCaseID,
			Status:         result.Status,
			ExecutionTime:  result.ExecutionTime,
			MemoryUsed:     result.MemoryUsed,
			StudentOutput:  deref(result.StudentOutput),
			ExpectedOutput: deref(result.ExpectedOutput),
			IsHidden:       result.IsHidden,
			PointsEarned:   result.PointsEarned,
		})
	}

	if err := s.submissions.CreateGraded(ctx, &submission, rows, progressStatus); err != nil {
		s.recordFailure(span, err)
		return execution.SubmitResult{}, fmt.Errorf("save submission: %w", err)
	}

	observability.GradedSubmissions().WithLabelValues(strings.ToLower(strings.ReplaceAll(progressStatus, " ", "_"))).Inc()
	observability.ExecutionRequests().WithLabelValues("submit", "graded").Inc()

	s.events.Publish(ctx, SubmissionGradedEvent{
		SubmissionID: submission.ID,
		StudentID:    studentID,
		QuestionID:   question.ID,
		LabID:        question.LabID,
		Status:       submission.Status,
		TotalScore:   totalScore,
		MaxScore:     maxScore,
		Completed:    progressStatus == models.ProgressStatusCompleted,
		GradedAt:     submission.SubmittedAt,
	})

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("student_id", studentID).
		Uint("question_id", question.ID).
		Int("passed", passed).
		Int("cases", len(results)).
		Msg("submission graded")

	if !actor.IsStaff() {
		results = execution.Redacted(results)
	}

	return execution.SubmitResult{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		Results:      results,
		Score:        fmt.Sprintf("%d/%d", int(totalScore), int(maxScore)),
		TotalScore:   totalScore,
		MaxScore:     maxScore,
	}, nil
}

func resolveStudent(actor Actor, requested uint) (uint, error) {
	if actor.ID == 0 {
		return 0, ErrSubmissionForbidden
	}
	if requested == 0 || requested == actor.ID {
		return actor.ID, nil
	}
	if actor.IsStaff() {
		return requested, nil
	}
	return 0, ErrSubmissionForbidden
}

// loadFixtures downloads inputs and expected outputs. A case whose files
// cannot be fetched is dropped together with its metadata so results stay
// paired with the right test case.
func (s *gradingService) loadFixtures(ctx context.Context, cases []models.TestCase) []fixture {
	fixtures := make([]fixture, 0, len(cases))
	for _, tc := range cases {
		if s.storage == nil {
			break
		}
		input, err := s.storage.Download(ctx, tc.InputURL)
		if err != nil {
			s.logger.Warn().Err(err).Uint("test_case_id", tc.ID).Msg("skipping test case with unreadable input")
			continue
		}
		expected, err := s.storage.Download(ctx, tc.OutputURL)
		if err != nil {
			s.logger.Warn().Err(err).Uint("test_case_id", tc.ID).Msg("skipping test case with unreadable output")
			continue
		}
		fixtures = append(fixtures, fixture{
			testCase: tc,
			input:    strings.TrimSpace(string(input)),
			expected: strings.TrimSpace(string(expected)),
		})
	}
	return fixtures
}

func (s *gradingService) grade(ctx context.Context, workspace string, langCfg languageConfig, fixtures []fixture, points int) ([]execution.TestCaseResult, string, error) {
	results := make([]execution.TestCaseResult, len(fixtures))

	compileErr, elapsed, err := s.compile(ctx, workspace, langCfg)
	if err != nil {
		return nil, "", err
	}
	if compileErr != "" {
		for i, f := range fixtures {
			results[i] = caseResult(f, execution.ResultCompilationError, compileErr, seconds(elapsed), 0, points)
		}
		return results, compileErr, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.config.Parallelism)
	for i, f := range fixtures {
		i, f := i, f
		group.Go(func() error {
			inputFile := fmt.Sprintf("case_%d.in", i+1)
			if err := os.WriteFile(filepath.Join(workspace, inputFile), []byte(f.input), 0o600); err != nil {
				return fmt.Errorf("write input: %w", err)
			}

			run, err := s.execute(groupCtx, workspace, langCfg, []string{"sh", "-c", langCfg.Run + " < " + inputFile})
			if err != nil {
				return err
			}

			status := classifyCase(run, f.expected)
			output := run.Stdout
			if status == execution.ResultRuntimeError && strings.TrimSpace(output) == "" {
				output = run.Stderr
			}
			results[i] = caseResult(f, status, output, seconds(run.Duration), run.MemoryUsageBytes/1024, points)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, "", err
	}
	return results, "", nil
}

func caseResult(f fixture, status, output string, elapsed float64, memoryKB int64, points int) execution.TestCaseResult {
	studentOutput := strings.TrimSpace(output)
	expected := f.expected
	if status != execution.ResultPassed {
		points = 0
	}
	return execution.TestCaseResult{
		TestCaseID:     f.testCase.ID,
		Status:         status,
		ExecutionTime:  elapsed,
		MemoryUsed:     memoryKB,
		StudentOutput:  &studentOutput,
		ExpectedOutput: &expected,
		IsHidden:       f.testCase.IsHidden,
		PointsEarned:   points,
	}
}

func (s *gradingService) prepareWorkspace(langCfg languageConfig, code string) (string, error) {
	workspace, err := os.MkdirTemp(s.config.WorkspaceRoot, "grading-")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, langCfg.FileName), []byte(code), 0o600); err != nil {
		_ = os.RemoveAll(workspace)
		return "", fmt.Errorf("write source: %w", err)
	}
	return workspace, nil
}

// compile returns the compiler diagnostics when compilation fails.
func (s *gradingService) compile(ctx context.Context, workspace string, langCfg languageConfig) (string, time.Duration, error) {
	if len(langCfg.Compile) == 0 {
		return "", 0, nil
	}
	result, err := s.execute(ctx, workspace, langCfg, langCfg.Compile)
	if err != nil {
		return "", 0, err
	}
	if result.TimedOut {
		return "compilation timed out", result.Duration, nil
	}
	if result.ExitCode != 0 {
		return firstNonEmpty(strings.TrimSpace(result.Stderr), strings.TrimSpace(result.Stdout), fmt.Sprintf("compiler exited with code %d", result.ExitCode)), result.Duration, nil
	}
	return "", result.Duration, nil
}

// execute runs cmd in the sandbox. A timeout is a result, any other executor
// failure is an environment error.
func (s *gradingService) execute(ctx context.Context, workspace string, langCfg languageConfig, cmd []string) (dockerexec.ExecutionResult, error) {
	if s.executor == nil {
		return dockerexec.ExecutionResult{}, ErrExecutionEnvironment
	}
	result, err := s.executor.Run(ctx, dockerexec.ExecutionRequest{
		Image:           langCfg.Image,
		Cmd:             cmd,
		Env:             langCfg.Env,
		Timeout:         s.config.ExecutionTimeout,
		Workspace:       workspace,
		WorkingDir:      "/workspace",
		MemoryLimitMB:   int64(s.config.MemoryLimitMB),
		CPUShares:       int64(s.config.CPUShares),
		NetworkDisabled: true,
	})
	if err != nil && !result.TimedOut {
		s.logger.Error().Err(err).Str("image", langCfg.Image).Msg("sandbox execution failed")
		return result, fmt.Errorf("%w: %v", ErrExecutionEnvironment, err)
	}
	return result, nil
}

func (s *gradingService) recordFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

const oomExitCode = 137

func classifyRun(result dockerexec.ExecutionResult) string {
	switch {
	case result.TimedOut:
		return execution.RunTimeLimit
	case result.OOMKilled || result.ExitCode == oomExitCode:
		return execution.RunMemoryLimit
	case result.ExitCode != 0:
		return execution.RunRuntimeError
	default:
		return execution.RunSuccess
	}
}

func classifyCase(result dockerexec.ExecutionResult, expected string) string {
	switch {
	case result.TimedOut:
		return execution.ResultTimeLimit
	case result.OOMKilled || result.ExitCode == oomExitCode:
		return execution.ResultMemoryLimit
	case result.ExitCode != 0:
		return execution.ResultRuntimeError
	case normalizeOutput(result.Stdout) == normalizeOutput(expected):
		return execution.ResultPassed
	default:
		return execution.ResultFailed
	}
}

// normalizeOutput ignores line ending style and trailing whitespace.
func normalizeOutput(value string) string {
	lines := strings.Split(strings.ReplaceAll(value, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
