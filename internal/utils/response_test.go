package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oelp-api/internal/utils"
)

func TestOKIncludesMetaAndDefaults(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		data := map[string]string{"hello": "world"}
		meta := map[string]int{"page": 1}
		return utils.OK(c, data, "", meta)
	})

	resp := performRequest(t, app, http.MethodGet, "/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool                   `json:"success"`
		Message string                 `json:"message"`
		Data    map[string]string      `json:"data"`
		Meta    map[string]interface{} `json:"meta"`
	}
	decode(t, resp, &payload)

	require.True(t, payload.Success)
	require.Equal(t, "success", payload.Message)
	require.Equal(t, "world", payload.Data["hello"])
	require.Equal(t, float64(1), payload.Meta["page"])
}

func TestFailIncludesDetails(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		details := map[string]string{"field": "question_id"}
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", details)
	})

	resp := performRequest(t, app, http.MethodGet, "/")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var payload struct {
		Success bool                   `json:"success"`
		Message string                 `json:"message"`
		Details map[string]string      `json:"details"`
		Data    map[string]interface{} `json:"data"`
	}
	decode(t, resp, &payload)

	require.False(t, payload.Success)
	require.Equal(t, "invalid payload", payload.Message)
	require.Equal(t, "question_id", payload.Details["field"])
	require.Nil(t, payload.Data)
}

func TestSendErrorDetailCarriesDetail(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.SendErrorDetail(c, fiber.StatusServiceUnavailable, "submission failed", "Execution Environment Error")
	})
	app.Get("/fallback", func(c *fiber.Ctx) error {
		return utils.SendErrorDetail(c, fiber.StatusNotFound, "No test cases found.", "")
	})

	resp := performRequest(t, app, http.MethodGet, "/")
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	decode(t, resp, &payload)
	require.False(t, payload.Success)
	require.Equal(t, "Execution Environment Error", payload.Detail)

	resp = performRequest(t, app, http.MethodGet, "/fallback")
	decode(t, resp, &payload)
	require.Equal(t, "No test cases found.", payload.Detail)
}

func TestEnvelopeDefaults(t *testing.T) {
	app := fiber.New()
	app.Post("/created", func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "", fiber.Map{"id": 3})
	})
	app.Get("/error", func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusForbidden, "")
	})

	cases := []struct {
		method  string
		path    string
		status  int
		success bool
		message string
	}{
		{http.MethodPost, "/created", fiber.StatusCreated, true, "success"},
		{http.MethodGet, "/error", fiber.StatusForbidden, false, "error"},
	}

	for _, tc := range cases {
		resp := performRequest(t, app, tc.method, tc.path)
		require.Equal(t, tc.status, resp.StatusCode, tc.path)

		var payload utils.APIResponse
		decode(t, resp, &payload)
		require.Equal(t, tc.success, payload.Success, tc.path)
		require.Equal(t, tc.message, payload.Message, tc.path)
	}
}

func performRequest(t *testing.T, app *fiber.App, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
