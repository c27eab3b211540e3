package handler_test

import (
	"context"
	"encoding/json"
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

type memoryDraftService struct {
	drafts map[[2]uint]string
}

func (s *memoryDraftService) Get(_ context.Context, studentID, questionID uint) (string, bool, error) {
	code, ok := s.drafts[[2]uint{studentID, questionID}]
	return code, ok, nil
}

func (s *memoryDraftService) Save(_ context.Context, studentID, questionID uint, code string) error {
	if len(code) > 16 {
		return service.ErrDraftTooLarge
	}
	s.drafts[[2]uint{studentID, questionID}] = code
	return nil
}

func (s *memoryDraftService) Delete(_ context.Context, studentID, questionID uint) error {
	delete(s.drafts, [2]uint{studentID, questionID})
	return nil
}

func newDraftApp(svc service.DraftService, userID uint) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/drafts", func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals("user_id", userID)
		}
		return c.Next()
	})
	handler.NewDraftHandler(svc, zerolog.Nop()).Register(group)
	return app
}

func TestDraftHandlerRoundTrip(t *testing.T) {
	svc := &memoryDraftService{drafts: map[[2]uint]string{}}
	app := newDraftApp(svc, 3)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/drafts/8", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/drafts/8", strings.NewReader(`{"code":"print(8)"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "print(8)", svc.drafts[[2]uint{3, 8}])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/drafts/8", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var payload struct {
		Data dto.DraftResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "print(8)", payload.Data.Code)

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/drafts/8", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Empty(t, svc.drafts)
}

func TestDraftHandlerRejections(t *testing.T) {
	svc := &memoryDraftService{drafts: map[[2]uint]string{}}

	resp, err := newDraftApp(svc, 0).Test(httptest.NewRequest(http.MethodGet, "/api/v1/drafts/8", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/drafts/8", strings.NewReader(`{"code":"this draft is far too long"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = newDraftApp(svc, 3).Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, err = newDraftApp(svc, 3).Test(httptest.NewRequest(http.MethodGet, "/api/v1/drafts/zero", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
