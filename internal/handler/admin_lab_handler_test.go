package handler_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oelp-api/internal/dto"
	"github.com/noah-isme/oelp-api/internal/handler"
	"github.com/noah-isme/oelp-api/internal/service"
)

type stubLabService struct {
	err     error
	created dto.LabCreateRequest
}

func (s *stubLabService) Create(_ context.Context, actor service.Actor, payload dto.LabCreateRequest) (dto.LabResponse, error) {
	s.created = payload
	if s.err != nil {
		return dto.LabResponse{}, s.err
	}
	return dto.LabResponse{ID: 1, Title: payload.Title, ProfessorID: actor.ID}, nil
}

func (s *stubLabService) List(context.Context, service.Actor) ([]dto.LabResponse, error) {
	return []dto.LabResponse{{ID: 1, Title: "Loops"}}, s.err
}

func (s *stubLabService) Delete(context.Context, service.Actor, uint) error {
	return s.err
}

type stubQuestionService struct {
	err   error
	rows  []dto.TestCaseUpload
	form  dto.QuestionCreateRequest
	labID uint
}

func (s *stubQuestionService) Create(_ context.Context, _ service.Actor, labID uint, payload dto.QuestionCreateRequest, rows []dto.TestCaseUpload) (dto.QuestionCreateResponse, error) {
	s.labID = labID
	s.form = payload
	s.rows = rows
	if s.err != nil {
		return dto.QuestionCreateResponse{}, s.err
	}
	return dto.QuestionCreateResponse{Question: dto.QuestionResponse{ID: 9, LabID: labID, Title: payload.Title}}, nil
}

func (s *stubQuestionService) List(context.Context, uint) ([]dto.QuestionResponse, error) {
	return nil, s.err
}

func (s *stubQuestionService) Delete(context.Context, service.Actor, uint) error {
	return s.err
}

func newAdminLabApp(labs service.LabService, questions service.QuestionService) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/admin", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(100))
		c.Locals("user_role", "professor")
		return c.Next()
	})
	handler.NewAdminLabHandler(labs, questions, zerolog.Nop()).Register(group)
	return app
}

func TestCreateQuestionPairsUploadsByPosition(t *testing.T) {
	questions := &stubQuestionService{}
	app := newAdminLabApp(&stubLabService{}, questions)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("title", "Sum two numbers"))
	require.NoError(t, writer.WriteField("difficulty", "Medium"))
	for _, file := range []struct{ field, name, content string }{
		{"input_files", "1.in", "1 2"},
		{"input_files", "2.in", "3 4"},
		{"output_files", "1.out", "3"},
	} {
		part, err := writer.CreateFormFile(file.field, file.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(file.content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/labs/6/questions", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	require.Equal(t, uint(6), questions.labID)
	require.Equal(t, "Sum two numbers", questions.form.Title)
	require.Equal(t, "Medium", questions.form.Difficulty)
	require.Len(t, questions.rows, 2)
	require.Equal(t, "1.in", questions.rows[0].Input.Filename)
	require.Equal(t, "1.out", questions.rows[0].Output.Filename)
	require.Equal(t, "2.in", questions.rows[1].Input.Filename)
	require.Nil(t, questions.rows[1].Output)
}

func TestAdminLabErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrLabNotFound, fiber.StatusNotFound},
		{service.ErrLabForbidden, fiber.StatusForbidden},
		{service.ErrInvalidTitle, fiber.StatusBadRequest},
	}

	for _, tc := range cases {
		app := newAdminLabApp(&stubLabService{err: tc.err}, &stubQuestionService{err: tc.err})
		resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/admin/labs/3", nil), -1)
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode, tc.err.Error())
	}

	questions := &stubQuestionService{}
	app := newAdminLabApp(&stubLabService{}, questions)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/labs/3/questions", strings.NewReader("title=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Zero(t, questions.labID)
}

func TestCreateLab(t *testing.T) {
	labs := &stubLabService{}
	app := newAdminLabApp(labs, &stubQuestionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/labs", strings.NewReader(`{"title":"Loops","description":"for and while"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "Loops", labs.created.Title)
}
