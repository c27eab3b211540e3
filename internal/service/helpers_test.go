package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/models"
	"github.com/noah-isme/oelp-api/internal/repository"
	dockerexec "github.com/noah-isme/oelp-api/pkg/docker"
)

var errFixtureMissing = errors.New("fixture missing")

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

type repos struct {
	profiles    repository.ProfileRepository
	labs        repository.LabRepository
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	progress    repository.ProgressRepository
}

func newRepos(db *gorm.DB) repos {
	return repos{
		profiles:    repository.NewProfileRepository(db),
		labs:        repository.NewLabRepository(db),
		questions:   repository.NewQuestionRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		progress:    repository.NewProgressRepository(db),
	}
}

type memoryStorage struct {
	mu      sync.Mutex
	files   map[string]string
	failOn  string
	uploads []string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{files: map[string]string{}}
}

func (m *memoryStorage) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	if m.failOn != "" && strings.Contains(name, m.failOn) {
		return "", errors.New("upload rejected")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	url := "mem://" + name
	m.files[url] = string(data)
	m.uploads = append(m.uploads, name)
	return url, nil
}

func (m *memoryStorage) Download(ctx context.Context, location string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[location]
	if !ok {
		return nil, errFixtureMissing
	}
	return []byte(data), nil
}

func (m *memoryStorage) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, "mem://"+name)
	return nil
}

func (m *memoryStorage) stored() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func (m *memoryStorage) remove(location string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, location)
}

// seedQuestion creates a lab with one question whose test cases are the given
// input/expected pairs. The first case is public.
func seedQuestion(t *testing.T, r repos, storage *memoryStorage, pairs ...[2]string) (models.Lab, models.Question, []models.TestCase) {
	t.Helper()
	ctx := context.Background()

	lab := models.Lab{Title: "Arrays", ProfessorID: 100}
	require.NoError(t, r.labs.Create(ctx, &lab))
	question := models.Question{LabID: lab.ID, Title: "Sum", Points: 10}
	require.NoError(t, r.questions.Create(ctx, &question))

	cases := make([]models.TestCase, 0, len(pairs))
	for i, pair := range pairs {
		inputURL, err := storage.Upload(ctx, fmt.Sprintf("%d/%d/case_%d_in.txt", lab.ID, question.ID, i+1), strings.NewReader(pair[0]))
		require.NoError(t, err)
		outputURL, err := storage.Upload(ctx, fmt.Sprintf("%d/%d/case_%d_out.txt", lab.ID, question.ID, i+1), strings.NewReader(pair[1]))
		require.NoError(t, err)
		cases = append(cases, models.TestCase{
			QuestionID: question.ID,
			Position:   i,
			InputURL:   inputURL,
			OutputURL:  outputURL,
			IsPublic:   i == 0,
			IsHidden:   i > 0,
		})
	}
	require.NoError(t, r.questions.CreateTestCases(ctx, cases))

	stored, err := r.questions.ListTestCases(ctx, question.ID)
	require.NoError(t, err)
	return lab, question, stored
}

// sandbox is a scripted executor. Compile steps succeed unless compileErr is
// set and runs feed the redirected stdin file to program.
type sandbox struct {
	mu         sync.Mutex
	calls      int
	compileErr string
	program    func(stdin string) (dockerexec.ExecutionResult, error)
}

func (s *sandbox) Run(ctx context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	command := strings.Join(req.Cmd, " ")
	if !strings.Contains(command, "< ") {
		if s.compileErr != "" {
			return dockerexec.ExecutionResult{ExitCode: 1, Stderr: s.compileErr}, nil
		}
		return dockerexec.ExecutionResult{}, nil
	}

	name := strings.TrimSpace(command[strings.LastIndex(command, "< ")+2:])
	data, err := os.ReadFile(filepath.Join(req.Workspace, name))
	if err != nil {
		return dockerexec.ExecutionResult{}, err
	}
	return s.program(string(data))
}

func (s *sandbox) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// adder prints the sum of the whitespace separated integers on stdin.
func adder(stdin string) (dockerexec.ExecutionResult, error) {
	total := 0
	for _, field := range strings.Fields(stdin) {
		value, err := strconv.Atoi(field)
		if err != nil {
			return dockerexec.ExecutionResult{ExitCode: 1, Stderr: "ValueError"}, nil
		}
		total += value
	}
	return dockerexec.ExecutionResult{Stdout: strconv.Itoa(total) + "\n"}, nil
}

type recordingEvents struct {
	mu       sync.Mutex
	events   []SubmissionGradedEvent
	handlers []func(SubmissionGradedEvent)
}

func (r *recordingEvents) Publish(ctx context.Context, event SubmissionGradedEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	handlers := append([]func(SubmissionGradedEvent){}, r.handlers...)
	r.mu.Unlock()
	for _, handler := range handlers {
		handler(event)
	}
}

func (r *recordingEvents) OnGraded(handler func(SubmissionGradedEvent)) {
	r.mu.Lock()
	r.handlers = append(r.handlers, handler)
	r.mu.Unlock()
}

func (r *recordingEvents) Start(ctx context.Context) {}

func (r *recordingEvents) published() []SubmissionGradedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SubmissionGradedEvent{}, r.events...)
}
