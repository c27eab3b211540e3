package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func staffApp(userID uint, role string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals("user_id", userID)
		}
		c.Locals("user_role", role)
		return c.Next()
	})
	app.Use(RequireStaff())
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireStaffAllowsStaffRoles(t *testing.T) {
	for _, role := range []string{"admin", "Professor", " teacher "} {
		resp, err := staffApp(1, role).Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, role)
	}
}

func TestRequireStaffRejectsStudents(t *testing.T) {
	resp, err := staffApp(1, "student").Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireStaffRequiresUser(t *testing.T) {
	resp, err := staffApp(0, "admin").Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestNormalizeRoleValue(t *testing.T) {
	require.Equal(t, "admin", normalizeRoleValue(" ADMIN "))
	require.Equal(t, "", normalizeRoleValue(nil))
	require.Equal(t, "7", normalizeRoleValue(7))
}
