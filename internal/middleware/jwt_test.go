package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oelp-api/internal/middleware"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func identityApp(secret string) *fiber.App {
	app := fiber.New()
	app.Use(middleware.JWTProtected(secret))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id": c.Locals("user_id"),
			"role":    c.Locals("user_role"),
			"token":   c.Locals(middleware.AuthTokenLocal),
		})
	})
	return app
}

func TestJWTProtectedAcceptsHeaderAndQuery(t *testing.T) {
	token := sign(t, "s3cret", jwt.MapClaims{"sub": "42", "roles": []string{"Professor"}, "exp": time.Now().Add(time.Minute).Unix()})
	app := identityApp("s3cret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/?token="+token, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedRejects(t *testing.T) {
	app := identityApp("s3cret")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	forged := sign(t, "other", jwt.MapClaims{"sub": 1})
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/?token="+forged, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	expired := sign(t, "s3cret", jwt.MapClaims{"sub": 1, "exp": time.Now().Add(-time.Minute).Unix()})
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/?token="+expired, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedStoresIdentity(t *testing.T) {
	token := sign(t, "s3cret", jwt.MapClaims{"user_id": float64(9), "role": " Student "})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := identityApp("s3cret").Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var identity struct {
		UserID float64 `json:"user_id"`
		Role   string  `json:"role"`
		Token  string  `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&identity))
	require.Equal(t, float64(9), identity.UserID)
	require.Equal(t, "student", identity.Role)
	require.Equal(t, token, identity.Token)
}
