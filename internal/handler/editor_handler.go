package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oelp-api/internal/editor"
	"github.com/noah-isme/oelp-api/internal/middleware"
	"github.com/noah-isme/oelp-api/internal/service"
	"github.com/noah-isme/oelp-api/pkg/execution"
)

// Editor websocket commands sent by the client.
const (
	commandEdit     = "edit"
	commandInput    = "input"
	commandRun      = "run"
	commandSubmit   = "submit"
	commandReset    = "reset"
	commandSnapshot = "snapshot"
)

// Editor websocket events sent to the client.
const (
	eventSnapshot     = "snapshot"
	eventState        = "state"
	eventSaved        = "saved"
	eventRunResult    = "run_result"
	eventSubmitResult = "submit_result"
	eventCompleted    = "completed"
	eventError        = "error"
)

const editorOutboxSize = 32

type editorCommand struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Input string `json:"input"`
}

type editorEvent struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// EditorHandler serves one editor session per websocket connection.
type EditorHandler struct {
	sessions service.EditorService
	logger   zerolog.Logger
}

// NewEditorHandler constructs the handler.
func NewEditorHandler(sessions service.EditorService, logger zerolog.Logger) *EditorHandler {
	return &EditorHandler{
		sessions: sessions,
		logger:   logger.With().Str("component", "editor_handler").Logger(),
	}
}

// Register binds the websocket upgrade route.
func (h *EditorHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *EditorHandler) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	questionID, err := strconv.ParseUint(strings.TrimSpace(conn.Query("question_id")), 10, 64)
	if err != nil || questionID == 0 {
		_ = conn.WriteJSON(editorEvent{Type: eventError, Error: "question_id required"})
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	userID, _ := conn.Locals("user_id").(uint)
	role, _ := conn.Locals("user_role").(string)
	token, _ := conn.Locals(middleware.AuthTokenLocal).(string)
	actor := service.Actor{ID: userID, Role: role}

	outbox := &socketOutbox{ctx: ctx, events: make(chan editorEvent, editorOutboxSize)}
	session, release, err := h.sessions.Open(ctx, actor, service.EditorRequest{
		QuestionID: uint(questionID),
		Language:   conn.Query("language"),
		Token:      token,
	}, outbox)
	if err != nil {
		_ = conn.WriteJSON(editorEvent{Type: eventError, Error: openErrorMessage(err)})
		if !errors.Is(err, service.ErrQuestionNotFound) && !errors.Is(err, service.ErrUnsupportedLanguage) {
			h.logger.Error().Err(err).Uint64("question_id", questionID).Msg("failed to open editor session")
		}
		return
	}
	defer release()

	logger := h.logger.With().Uint("user_id", userID).Uint64("question_id", questionID).Logger()
	logger.Info().Msg("editor websocket connected")

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-outbox.events:
				if err := conn.WriteJSON(event); err != nil {
					logger.Debug().Err(err).Msg("editor websocket write failed")
					cancel()
					return
				}
			}
		}
	}()

	outbox.emit(editorEvent{Type: eventSnapshot, Data: session.View()})

	var tasks sync.WaitGroup
	for {
		var cmd editorCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		h.dispatch(ctx, session, cmd, outbox, &tasks)
	}

	cancel()
	tasks.Wait()
	writer.Wait()
	logger.Info().Msg("editor websocket disconnected")
}

func (h *EditorHandler) dispatch(ctx context.Context, session *editor.Session, cmd editorCommand, outbox *socketOutbox, tasks *sync.WaitGroup) {
	switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
	case commandEdit:
		if err := session.Edit(cmd.Code); err != nil {
			outbox.emit(editorEvent{Type: eventError, Error: err.Error()})
		}
	case commandInput:
		session.SetInput(cmd.Input)
	case commandReset:
		if err := session.Reset(ctx); err != nil {
			outbox.emit(editorEvent{Type: eventError, Error: "failed to reset draft"})
		}
		outbox.emit(editorEvent{Type: eventSnapshot, Data: session.View()})
	case commandSnapshot:
		outbox.emit(editorEvent{Type: eventSnapshot, Data: session.View()})
	case commandRun:
		tasks.Add(1)
		go func() {
			defer tasks.Done()
			view, err := session.Run(ctx)
			if errors.Is(err, editor.ErrBusy) || errors.Is(err, editor.ErrClosed) {
				outbox.emit(editorEvent{Type: eventError, Error: err.Error()})
				return
			}
			outbox.emit(editorEvent{Type: eventRunResult, Data: view})
		}()
	case commandSubmit:
		tasks.Add(1)
		go func() {
			defer tasks.Done()
			if _, err := session.Submit(ctx); err != nil {
				outbox.emit(editorEvent{Type: eventError, Error: submitErrorMessage(err)})
				return
			}
			outbox.emit(editorEvent{Type: eventSubmitResult, Data: session.View()})
		}()
	default:
		outbox.emit(editorEvent{Type: eventError, Error: "unknown command"})
	}
}

func openErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrQuestionNotFound):
		return "question not found"
	case errors.Is(err, service.ErrUnsupportedLanguage):
		return "language not supported"
	default:
		return "failed to open editor"
	}
}

func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, editor.ErrAuthenticationRequired):
		return editor.MsgLoginRequired
	case errors.Is(err, editor.ErrBusy), errors.Is(err, editor.ErrClosed):
		return err.Error()
	default:
		return execution.Detail(err, editor.MsgSubmitFailed)
	}
}

// socketOutbox adapts session callbacks to websocket events. Events are
// dropped once the connection context ends.
type socketOutbox struct {
	ctx    context.Context
	events chan editorEvent
}

func (o *socketOutbox) emit(event editorEvent) {
	select {
	case <-o.ctx.Done():
	case o.events <- event:
	}
}

func (o *socketOutbox) StateChanged(state editor.State) {
	o.emit(editorEvent{Type: eventState, Data: state.String()})
}

func (o *socketOutbox) DraftSaved(string) {
	o.emit(editorEvent{Type: eventSaved})
}

func (o *socketOutbox) QuestionCompleted(questionID uint) {
	o.emit(editorEvent{Type: eventCompleted, Data: fiber.Map{"question_id": questionID}})
}
