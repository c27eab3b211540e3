package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/noah-isme/oelp-api/internal/draft"
	"github.com/noah-isme/oelp-api/pkg/execution"
)

type memoryStore struct {
	mu      sync.Mutex
	drafts  map[draft.Key]string
	saves   []string
	deletes int
	loadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{drafts: make(map[draft.Key]string)}
}

func (m *memoryStore) Load(_ context.Context, key draft.Key) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return "", false, m.loadErr
	}
	code, ok := m.drafts[key]
	return code, ok, nil
}

func (m *memoryStore) Save(_ context.Context, key draft.Key, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[key] = code
	m.saves = append(m.saves, code)
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key draft.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, key)
	m.deletes++
	return nil
}

func (m *memoryStore) savedValues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.saves...)
}

func (m *memoryStore) get(key draft.Key) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.drafts[key]
	return code, ok
}

type stubExecutor struct {
	mu          sync.Mutex
	runResult   execution.RunResult
	runErr      error
	submitRes   execution.SubmitResult
	submitErr   error
	gate        chan struct{}
	entered     chan struct{}
	lastRun     execution.RunRequest
	lastSubmit  execution.SubmitRequest
	submitCalls int
}

func (s *stubExecutor) wait() {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
}

func (s *stubExecutor) Run(_ context.Context, req execution.RunRequest) (execution.RunResult, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = req
	return s.runResult, s.runErr
}

func (s *stubExecutor) Submit(_ context.Context, req execution.SubmitRequest) (execution.SubmitResult, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSubmit = req
	s.submitCalls++
	return s.submitRes, s.submitErr
}

type recordingListener struct {
	mu        sync.Mutex
	saved     chan string
	completed []uint
	states    []State
}

func newRecordingListener() *recordingListener {
	return &recordingListener{saved: make(chan string, 8)}
}

func (l *recordingListener) StateChanged(state State) {
	l.mu.Lock()
	l.states = append(l.states, state)
	l.mu.Unlock()
}

func (l *recordingListener) DraftSaved(code string) { l.saved <- code }

func (l *recordingListener) QuestionCompleted(questionID uint) {
	l.mu.Lock()
	l.completed = append(l.completed, questionID)
	l.mu.Unlock()
}

func (l *recordingListener) completions() []uint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint(nil), l.completed...)
}

func newSession(t *testing.T, store draft.Store, exec Executor, listener Listener, mutate func(*Config)) *Session {
	t.Helper()
	cfg := Config{
		StudentID:   5,
		QuestionID:  12,
		Language:    "python",
		Starter:     "# starter\n",
		Store:       store,
		Executor:    exec,
		QuietPeriod: 20 * time.Millisecond,
		Listener:    listener,
		Logger:      zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	session, err := NewSession(cfg)
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func strPtr(v string) *string { return &v }

func TestOpenPrefersDraftOverSubmissionAndStarter(t *testing.T) {
	store := newMemoryStore()
	session := newSession(t, store, &stubExecutor{}, nil, func(cfg *Config) {
		cfg.LastSubmissionCode = "print('last')"
	})

	require.Equal(t, "submission", session.Open(context.Background()))
	require.Equal(t, "print('last')", session.Code())

	store.drafts[draft.Key{StudentID: 5, QuestionID: 12}] = "print('draft')"
	require.Equal(t, "draft", session.Open(context.Background()))
	require.Equal(t, "print('draft')", session.Code())
}

func TestOpenFallsBackWhenDraftStoreFails(t *testing.T) {
	store := newMemoryStore()
	store.loadErr = errors.New("redis down")
	session := newSession(t, store, &stubExecutor{}, nil, nil)

	require.Equal(t, "starter", session.Open(context.Background()))
	require.Equal(t, "# starter\n", session.Code())
}

func TestOpenUsesDefaultStarter(t *testing.T) {
	session := newSession(t, newMemoryStore(), &stubExecutor{}, nil, func(cfg *Config) { cfg.Starter = "" })
	session.Open(context.Background())
	require.Equal(t, DefaultStarter, session.Code())
}

func TestEditsAreDebouncedIntoSingleDraftWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newMemoryStore()
	listener := newRecordingListener()
	session := newSession(t, store, &stubExecutor{}, listener, nil)
	session.Open(context.Background())

	for _, code := range []string{"a", "ab", "abc"} {
		require.NoError(t, session.Edit(code))
	}
	require.Equal(t, SaveStatusUnsaved, session.View().SaveStatus)
	require.Equal(t, StateEditing, session.State())

	select {
	case saved := <-listener.saved:
		require.Equal(t, "abc", saved)
	case <-time.After(time.Second):
		t.Fatal("draft was never saved")
	}

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []string{"abc"}, store.savedValues())
	require.Equal(t, SaveStatusSaved, session.View().SaveStatus)
	session.Close()
}

func TestResetCancelsPendingWriteAndRestoresStarter(t *testing.T) {
	store := newMemoryStore()
	key := draft.Key{StudentID: 5, QuestionID: 12}
	store.drafts[key] = "old draft"
	session := newSession(t, store, &stubExecutor{}, nil, func(cfg *Config) {
		cfg.LastSubmissionCode = "submitted code"
		cfg.QuietPeriod = 50 * time.Millisecond
	})
	session.Open(context.Background())

	require.NoError(t, session.Edit("unsaved change"))
	require.NoError(t, session.Reset(context.Background()))

	time.Sleep(100 * time.Millisecond)
	_, found := store.get(key)
	require.False(t, found)
	require.Empty(t, store.savedValues())
	require.Equal(t, "# starter\n", session.Code())
	require.Equal(t, SaveStatusSaved, session.View().SaveStatus)
}

func TestRunUsesInMemoryCodeAndFormatsLabel(t *testing.T) {
	store := newMemoryStore()
	exec := &stubExecutor{runResult: execution.RunResult{Status: execution.RunSuccess, Output: "42\n", Time: 0.25}}
	session := newSession(t, store, exec, nil, func(cfg *Config) { cfg.QuietPeriod = time.Hour })
	session.Open(context.Background())

	require.NoError(t, session.Edit("print(42)"))
	session.SetInput("7")

	view, err := session.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, RunView{Output: "42\n", Label: "Success (0.25s)"}, view)
	require.Equal(t, "print(42)", exec.lastRun.Code)
	require.Equal(t, "7", exec.lastRun.CustomInput)
	require.Empty(t, store.savedValues())
	require.Equal(t, StateIdle, session.State())
}

func TestRunPresentsCompilationErrorWithoutTouchingResults(t *testing.T) {
	exec := &stubExecutor{
		runResult: execution.RunResult{Status: execution.RunCompilationError, Error: "SyntaxError"},
		submitRes: execution.SubmitResult{Score: "10/10", Results: []execution.TestCaseResult{{Status: execution.ResultPassed}}},
	}
	session := newSession(t, newMemoryStore(), exec, nil, nil)
	session.Open(context.Background())

	_, err := session.Submit(context.Background())
	require.NoError(t, err)

	view, err := session.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "SyntaxError", view.Output)
	require.Equal(t, "Compilation Error", view.Label)
	require.Len(t, session.View().Results, 1)

	exec.runResult = execution.RunResult{Status: execution.RunCompilationError}
	view, _ = session.Run(context.Background())
	require.Equal(t, MsgUnknownError, view.Output)

	exec.runResult = execution.RunResult{Status: execution.RunRuntimeError, Time: 1}
	view, _ = session.Run(context.Background())
	require.Equal(t, RunView{Output: MsgNoOutput, Label: "Runtime Error (1s)"}, view)
}

func TestRunTransportFailureReturnsToIdle(t *testing.T) {
	exec := &stubExecutor{runErr: &execution.Error{StatusCode: 500, Detail: "Execution timed out or failed"}}
	session := newSession(t, newMemoryStore(), exec, nil, nil)

	view, err := session.Run(context.Background())
	require.ErrorIs(t, err, execution.ErrExecutionUnavailable)
	require.Equal(t, RunView{Output: "Error: Execution timed out or failed", Label: LabelError}, view)
	require.Equal(t, StateIdle, session.State())
}

func TestConcurrentRequestsAreRejected(t *testing.T) {
	exec := &stubExecutor{
		gate:      make(chan struct{}),
		entered:   make(chan struct{}, 1),
		runResult: execution.RunResult{Status: execution.RunSuccess},
	}
	session := newSession(t, newMemoryStore(), exec, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := session.Run(context.Background())
		done <- err
	}()
	<-exec.entered
	require.Equal(t, StateRunning, session.State())

	_, err := session.Run(context.Background())
	require.ErrorIs(t, err, ErrBusy)
	_, err = session.Submit(context.Background())
	require.ErrorIs(t, err, ErrBusy)
	require.NoError(t, session.Edit("typing while running"))
	require.Equal(t, StateRunning, session.State())

	close(exec.gate)
	require.NoError(t, <-done)
	require.Equal(t, StateIdle, session.State())
	require.Zero(t, exec.submitCalls)
}

func TestSubmitSignalsCompletionWhenAllPassed(t *testing.T) {
	listener := newRecordingListener()
	exec := &stubExecutor{submitRes: execution.SubmitResult{
		SubmissionID: 3,
		Score:        "20/20",
		Results: []execution.TestCaseResult{
			{Status: execution.ResultPassed, StudentOutput: strPtr("1"), ExpectedOutput: strPtr("1")},
			{Status: execution.ResultPassed, IsHidden: true, StudentOutput: strPtr("secret"), ExpectedOutput: strPtr("secret")},
		},
	}}
	session := newSession(t, newMemoryStore(), exec, listener, nil)
	session.Open(context.Background())
	require.NoError(t, session.Edit("solution"))

	result, err := session.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint(3), result.SubmissionID)
	require.Equal(t, "solution", exec.lastSubmit.Code)
	require.Equal(t, uint(5), exec.lastSubmit.StudentID)
	require.Equal(t, []uint{12}, listener.completions())

	snapshot := session.View()
	require.True(t, snapshot.Completed)
	require.Equal(t, "20/20", snapshot.Score)
	require.Len(t, snapshot.Results, 2)
	require.NotNil(t, snapshot.Results[0].StudentOutput)
	require.True(t, snapshot.Results[1].IsHidden)
	require.Nil(t, snapshot.Results[1].StudentOutput)
	require.Nil(t, snapshot.Results[1].ExpectedOutput)
}

func TestSubmitWithEmptyResultsDoesNotComplete(t *testing.T) {
	listener := newRecordingListener()
	exec := &stubExecutor{submitRes: execution.SubmitResult{Score: "0/0"}}
	session := newSession(t, newMemoryStore(), exec, listener, nil)

	_, err := session.Submit(context.Background())
	require.NoError(t, err)
	require.Empty(t, listener.completions())
	require.False(t, session.View().Completed)
}

func TestSubmitFailureKeepsResultsAndDraft(t *testing.T) {
	store := newMemoryStore()
	key := draft.Key{StudentID: 5, QuestionID: 12}
	store.drafts[key] = "draft code"

	exec := &stubExecutor{submitRes: execution.SubmitResult{Score: "10/20", Results: []execution.TestCaseResult{
		{Status: execution.ResultPassed}, {Status: execution.ResultFailed},
	}}}
	session := newSession(t, store, exec, nil, nil)
	session.Open(context.Background())

	_, err := session.Submit(context.Background())
	require.NoError(t, err)

	exec.submitErr = &execution.Error{StatusCode: 503, Detail: "Execution Environment Error"}
	_, err = session.Submit(context.Background())
	require.ErrorIs(t, err, execution.ErrExecutionUnavailable)

	snapshot := session.View()
	require.Equal(t, "Execution Environment Error", snapshot.Error)
	require.Len(t, snapshot.Results, 2)
	require.Equal(t, "10/20", snapshot.Score)
	require.Equal(t, "idle", snapshot.State)

	code, found := store.get(key)
	require.True(t, found)
	require.Equal(t, "draft code", code)

	exec.submitErr = errors.New("boom")
	_, err = session.Submit(context.Background())
	require.Error(t, err)
	require.Equal(t, MsgSubmitFailed, session.View().Error)
}

func TestSubmitRequiresStudent(t *testing.T) {
	exec := &stubExecutor{}
	session := newSession(t, newMemoryStore(), exec, nil, func(cfg *Config) { cfg.StudentID = 0 })
	session.Open(context.Background())

	_, err := session.Submit(context.Background())
	require.ErrorIs(t, err, ErrAuthenticationRequired)
	require.Equal(t, MsgLoginRequired, session.View().Error)
	require.Zero(t, exec.submitCalls)
	require.NoError(t, session.Edit("anonymous edits stay local"))
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newMemoryStore()
	session := newSession(t, store, &stubExecutor{}, nil, nil)
	require.NoError(t, session.Edit("pending"))
	session.Close()

	require.ErrorIs(t, session.Edit("more"), ErrClosed)
	_, err := session.Run(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, session.Reset(context.Background()), ErrClosed)

	time.Sleep(60 * time.Millisecond)
	require.Empty(t, store.savedValues())
}

func TestNewSessionValidatesConfig(t *testing.T) {
	_, err := NewSession(Config{QuestionID: 1})
	require.Error(t, err)
	_, err = NewSession(Config{Store: newMemoryStore(), Executor: &stubExecutor{}})
	require.Error(t, err)
}
