package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oelp-api/internal/draft"
	"github.com/noah-isme/oelp-api/internal/editor"
	"github.com/noah-isme/oelp-api/internal/models"
)

func TestEditorServiceOpensSessionFromLastSubmission(t *testing.T) {
	r := newRepos(newTestDB(t))
	storage := newMemoryStorage()
	_, question, _ := seedQuestion(t, r, storage, [2]string{"1", "1"})
	_, client := newMiniRedis(t)
	store := draft.NewRedisStore(client, time.Hour, zerolog.Nop())

	authorization := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		authorization <- req.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"status": "Success", "output": "1\n", "time": 0.01},
		})
	}))
	defer server.Close()

	svc := NewEditorService(r.questions, r.submissions, store, EditorConfig{ExecutionURL: server.URL, QuietPeriod: 10 * time.Millisecond}, zerolog.Nop())
	ctx := context.Background()

	session, release, err := svc.Open(ctx, student, EditorRequest{QuestionID: question.ID, Language: "python", Token: "token-123"}, nil)
	require.NoError(t, err)
	require.Equal(t, editor.DefaultStarter, session.Code())
	release()

	storeSubmission(t, r, student.ID, question.ID, 10, models.ProgressStatusInProgress, time.Now().UTC())
	session, release, err = svc.Open(ctx, student, EditorRequest{QuestionID: question.ID, Language: "python", Token: "token-123"}, nil)
	require.NoError(t, err)
	defer release()
	require.Equal(t, "print(42)", session.Code())
	require.Equal(t, "submission", session.View().Source)

	view, err := session.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, "1\n", view.Output)
	require.Equal(t, "Bearer token-123", <-authorization)

	_, _, err = svc.Open(ctx, student, EditorRequest{QuestionID: question.ID + 50}, nil)
	require.ErrorIs(t, err, ErrQuestionNotFound)

	_, _, err = svc.Open(ctx, student, EditorRequest{QuestionID: question.ID, Language: "cobol"}, nil)
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestDraftServiceRoundTrip(t *testing.T) {
	_, client := newMiniRedis(t)
	svc := NewDraftService(draft.NewRedisStore(client, 0, zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	_, found, err := svc.Get(ctx, 7, 3)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, svc.Save(ctx, 7, 3, "print('draft')"))
	code, found, err := svc.Get(ctx, 7, 3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "print('draft')", code)

	require.ErrorIs(t, svc.Save(ctx, 7, 3, string(make([]byte, maxDraftBytes+1))), ErrDraftTooLarge)
	require.ErrorIs(t, svc.Save(ctx, 0, 3, "x"), draft.ErrInvalidKey)

	require.NoError(t, svc.Delete(ctx, 7, 3))
	_, found, err = svc.Get(ctx, 7, 3)
	require.NoError(t, err)
	require.False(t, found)
}
