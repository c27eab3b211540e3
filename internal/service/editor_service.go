package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/draft"
	"github.com/noah-isme/oelp-api/internal/editor"
	"github.com/noah-isme/oelp-api/internal/observability"
	"github.com/noah-isme/oelp-api/internal/repository"
	"github.com/noah-isme/oelp-api/pkg/execution"
)

// ErrDraftTooLarge indicates the draft exceeds the stored size limit.
var ErrDraftTooLarge = errors.New("draft exceeds the maximum size")

const maxDraftBytes = 256 << 10

// EditorConfig configures editor sessions.
type EditorConfig struct {
	ExecutionURL string
	QuietPeriod  time.Duration
	HTTPClient   *http.Client
}

// EditorRequest identifies the question being edited. Token is forwarded to
// the execution API on run and submit.
type EditorRequest struct {
	QuestionID uint
	Language   string
	Token      string
}

// EditorService opens editor sessions bound to the execution API.
type EditorService interface {
	Open(ctx context.Context, actor Actor, req EditorRequest, listener editor.Listener) (*editor.Session, func(), error)
}

type editorService struct {
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	store       draft.Store
	config      EditorConfig
	logger      zerolog.Logger
}

// NewEditorService constructs the editor session factory.
func NewEditorService(questions repository.QuestionRepository, submissions repository.SubmissionRepository, store draft.Store, cfg EditorConfig, logger zerolog.Logger) EditorService {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = execution.NewHTTPClient(30 * time.Second)
	}
	return &editorService{
		questions:   questions,
		submissions: submissions,
		store:       store,
		config:      cfg,
		logger:      logger.With().Str("component", "editor_service").Logger(),
	}
}

// Open loads the question and returns a ready session. The release func
// closes the session and must be called exactly once.
func (s *editorService) Open(ctx context.Context, actor Actor, req EditorRequest, listener editor.Listener) (*editor.Session, func(), error) {
	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language != "" {
		if _, ok := languageConfigs[language]; !ok {
			return nil, nil, ErrUnsupportedLanguage
		}
	}

	question, err := s.questions.GetByID(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrQuestionNotFound
		}
		return nil, nil, err
	}

	lastCode := ""
	if actor.ID != 0 {
		latest, err := s.submissions.LatestForQuestion(ctx, actor.ID, question.ID)
		switch {
		case err == nil:
			lastCode = latest.Code
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			s.logger.Warn().Err(err).Uint("question_id", question.ID).Msg("failed to load last submission")
		}
	}

	client := execution.New(s.config.ExecutionURL,
		execution.WithHTTPClient(s.config.HTTPClient),
		execution.WithToken(req.Token),
		execution.WithLogger(s.logger),
	)

	session, err := editor.NewSession(editor.Config{
		StudentID:          actor.ID,
		QuestionID:         question.ID,
		Language:           language,
		Starter:            question.StarterCode,
		LastSubmissionCode: lastCode,
		Store:              s.store,
		Executor:           client,
		QuietPeriod:        s.config.QuietPeriod,
		Listener:           listener,
		Logger:             s.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	session.Open(ctx)

	observability.EditorSessionsActive().Inc()
	release := func() {
		session.Close()
		observability.EditorSessionsActive().Dec()
	}

	return session, release, nil
}

// DraftService exposes the draft store to HTTP clients.
type DraftService interface {
	Get(ctx context.Context, studentID, questionID uint) (string, bool, error)
	Save(ctx context.Context, studentID, questionID uint, code string) error
	Delete(ctx context.Context, studentID, questionID uint) error
}

type draftService struct {
	store  draft.Store
	logger zerolog.Logger
}

// NewDraftService constructs the draft service.
func NewDraftService(store draft.Store, logger zerolog.Logger) DraftService {
	return &draftService{
		store:  store,
		logger: logger.With().Str("component", "draft_service").Logger(),
	}
}

func (s *draftService) Get(ctx context.Context, studentID, questionID uint) (string, bool, error) {
	return s.store.Load(ctx, draft.Key{StudentID: studentID, QuestionID: questionID})
}

func (s *draftService) Save(ctx context.Context, studentID, questionID uint, code string) error {
	if len(code) > maxDraftBytes {
		return ErrDraftTooLarge
	}
	return s.store.Save(ctx, draft.Key{StudentID: studentID, QuestionID: questionID}, code)
}

func (s *draftService) Delete(ctx context.Context, studentID, questionID uint) error {
	return s.store.Delete(ctx, draft.Key{StudentID: studentID, QuestionID: questionID})
}
