// Package editor coordinates one student's editing session: draft load and
// save, run and submit requests, and the results shown to the student.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/oelp-api/internal/draft"
	"github.com/noah-isme/oelp-api/pkg/execution"
)

// State is the orchestration state of a session.
type State int

const (
	StateIdle State = iota
	StateEditing
	StateRunning
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateRunning:
		return "running"
	case StateSubmitting:
		return "submitting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultStarter is used when a question has no starter code.
const DefaultStarter = `# Write your code here
def solve():
    pass

if __name__ == "__main__":
    solve()
`

// Messages shown to the student.
const (
	MsgLoginRequired  = "You must be logged in."
	MsgSubmitFailed   = "Submission failed"
	MsgUnknownError   = "Unknown Error"
	MsgNoOutput       = "No Output"
	LabelError        = "Error"
	SaveStatusSaved   = "Saved"
	SaveStatusUnsaved = "Saving..."
)

const (
	draftWriteTimeout  = 5 * time.Second
	defaultQuietPeriod = time.Second
)

var (
	// ErrBusy is returned when a run or submit is already in flight.
	ErrBusy = errors.New("editor: a run or submit is already in progress")
	// ErrAuthenticationRequired is returned by Submit without a student identity.
	ErrAuthenticationRequired = errors.New("editor: authentication required")
	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("editor: session closed")
)

// Executor is the execution service as seen by a session.
type Executor interface {
	Run(ctx context.Context, req execution.RunRequest) (execution.RunResult, error)
	Submit(ctx context.Context, req execution.SubmitRequest) (execution.SubmitResult, error)
}

// Listener receives session notifications. Callbacks run outside the session
// lock and may call View.
type Listener interface {
	StateChanged(state State)
	DraftSaved(code string)
	QuestionCompleted(questionID uint)
}

// NopListener ignores every notification.
type NopListener struct{}

func (NopListener) StateChanged(State)     {}
func (NopListener) DraftSaved(string)      {}
func (NopListener) QuestionCompleted(uint) {}

// Config configures a session. StudentID zero means the user is anonymous.
type Config struct {
	StudentID          uint
	QuestionID         uint
	Language           string
	Starter            string
	LastSubmissionCode string
	Store              draft.Store
	Executor           Executor
	QuietPeriod        time.Duration
	Listener           Listener
	Logger             zerolog.Logger
}

// RunView is the presentation of the latest run.
type RunView struct {
	Output string `json:"output"`
	Label  string `json:"label"`
}

// Session is the state of one editing session. It is safe for concurrent use.
type Session struct {
	cfg       Config
	key       draft.Key
	listener  Listener
	logger    zerolog.Logger
	debouncer *draft.Debouncer

	mu        sync.Mutex
	state     State
	code      string
	input     string
	saved     bool
	source    string
	run       RunView
	results   []execution.TestCaseResult
	score     string
	completed bool
	lastError string
	closed    bool
}

// NewSession builds a session. Call Open before editing.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Store == nil || cfg.Executor == nil {
		return nil, errors.New("editor: store and executor are required")
	}
	if cfg.QuestionID == 0 {
		return nil, errors.New("editor: question is required")
	}
	if cfg.Starter == "" {
		cfg.Starter = DefaultStarter
	}
	if cfg.Language == "" {
		cfg.Language = "python"
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = defaultQuietPeriod
	}

	listener := cfg.Listener
	if listener == nil {
		listener = NopListener{}
	}

	s := &Session{
		cfg:      cfg,
		key:      draft.Key{StudentID: cfg.StudentID, QuestionID: cfg.QuestionID},
		listener: listener,
		logger: cfg.Logger.With().
			Str("component", "editor_session").
			Uint("student_id", cfg.StudentID).
			Uint("question_id", cfg.QuestionID).
			Logger(),
		state: StateIdle,
		code:  cfg.Starter,
		saved: true,
	}
	s.debouncer = draft.NewDebouncer(cfg.QuietPeriod, s.persist)
	return s, nil
}

// Open loads the initial content: the draft, then the last submission, then
// the starter template. A draft store failure is logged and ignored.
func (s *Session) Open(ctx context.Context) string {
	code, source := s.cfg.Starter, "starter"
	if s.cfg.LastSubmissionCode != "" {
		code, source = s.cfg.LastSubmissionCode, "submission"
	}

	if s.key.Valid() {
		stored, found, err := s.cfg.Store.Load(ctx, s.key)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("failed to load draft")
		case found:
			code, source = stored, "draft"
		}
	}

	s.mu.Lock()
	s.code = code
	s.source = source
	s.saved = true
	s.mu.Unlock()

	return source
}

// Edit replaces the in-memory code and schedules a debounced draft write.
func (s *Session) Edit(code string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.code = code
	s.saved = false
	changed := s.state == StateIdle
	if changed {
		s.state = StateEditing
	}
	s.mu.Unlock()

	if s.key.Valid() {
		s.debouncer.Schedule(code)
	}
	if changed {
		s.listener.StateChanged(StateEditing)
	}
	return nil
}

// SetInput sets the custom input used by Run.
func (s *Session) SetInput(input string) {
	s.mu.Lock()
	s.input = input
	s.mu.Unlock()
}

func (s *Session) persist(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), draftWriteTimeout)
	defer cancel()

	if err := s.cfg.Store.Save(ctx, s.key, code); err != nil {
		s.logger.Warn().Err(err).Msg("failed to save draft")
		return
	}

	s.mu.Lock()
	if s.code == code {
		s.saved = true
	}
	s.mu.Unlock()

	s.listener.DraftSaved(code)
}

// Reset deletes the draft and restores the starter template. A pending draft
// write is cancelled first so it cannot land after the delete.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	s.debouncer.Cancel()

	var err error
	if s.key.Valid() {
		err = s.cfg.Store.Delete(ctx, s.key)
	}

	s.mu.Lock()
	s.code = s.cfg.Starter
	s.source = "starter"
	s.saved = true
	s.mu.Unlock()

	return err
}

// Run executes the current in-memory code with the custom input. A failure
// reported by the execution service is a result; only transport failures
// return an error.
func (s *Session) Run(ctx context.Context) (RunView, error) {
	code, input, err := s.begin(StateRunning)
	if err != nil {
		return RunView{}, err
	}

	result, runErr := s.cfg.Executor.Run(ctx, execution.RunRequest{
		Language:    s.cfg.Language,
		Code:        code,
		CustomInput: input,
	})

	view := presentRun(result, runErr)

	s.mu.Lock()
	s.run = view
	s.mu.Unlock()
	s.finish()

	if runErr != nil {
		s.logger.Warn().Err(runErr).Msg("run failed")
	}
	return view, runErr
}

// Submit grades the current in-memory code. On success the displayed results
// are replaced; on failure they are left untouched.
func (s *Session) Submit(ctx context.Context) (execution.SubmitResult, error) {
	if s.cfg.StudentID == 0 {
		s.mu.Lock()
		s.lastError = MsgLoginRequired
		s.mu.Unlock()
		return execution.SubmitResult{}, ErrAuthenticationRequired
	}

	code, _, err := s.begin(StateSubmitting)
	if err != nil {
		return execution.SubmitResult{}, err
	}

	result, submitErr := s.cfg.Executor.Submit(ctx, execution.SubmitRequest{
		StudentID:  s.cfg.StudentID,
		QuestionID: s.cfg.QuestionID,
		Language:   s.cfg.Language,
		Code:       code,
	})

	completed := false
	s.mu.Lock()
	if submitErr != nil {
		s.lastError = execution.Detail(submitErr, MsgSubmitFailed)
	} else {
		s.lastError = ""
		s.results = result.Results
		s.score = result.Score
		if execution.AllPassed(result.Results) {
			s.completed = true
			completed = true
		}
	}
	s.mu.Unlock()
	s.finish()

	if submitErr != nil {
		s.logger.Warn().Err(submitErr).Msg("submit failed")
		return execution.SubmitResult{}, submitErr
	}
	if completed {
		s.listener.QuestionCompleted(s.cfg.QuestionID)
	}
	return result, nil
}

func (s *Session) begin(next State) (string, string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", "", ErrClosed
	}
	if s.state == StateRunning || s.state == StateSubmitting {
		s.mu.Unlock()
		return "", "", ErrBusy
	}
	s.state = next
	code, input := s.code, s.input
	s.mu.Unlock()

	s.listener.StateChanged(next)
	return code, input, nil
}

func (s *Session) finish() {
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.listener.StateChanged(StateIdle)
}

// Close cancels any pending draft write and rejects further operations.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.debouncer.Close()
}

// State returns the current orchestration state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Code returns the current in-memory code.
func (s *Session) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

func presentRun(result execution.RunResult, err error) RunView {
	if err != nil {
		return RunView{Output: "Error: " + execution.Detail(err, err.Error()), Label: LabelError}
	}
	if result.Status == execution.RunCompilationError {
		output := result.Error
		if output == "" {
			output = MsgUnknownError
		}
		return RunView{Output: output, Label: execution.RunCompilationError}
	}

	output := result.Output
	if output == "" {
		output = MsgNoOutput
	}
	return RunView{Output: output, Label: fmt.Sprintf("%s (%ss)", result.Status, formatSeconds(result.Time))}
}
