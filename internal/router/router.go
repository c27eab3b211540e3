package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/oelp-api/internal/config"
	"github.com/noah-isme/oelp-api/internal/handler"
	"github.com/noah-isme/oelp-api/internal/middleware"
	"github.com/noah-isme/oelp-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ExecHandler           *handler.ExecHandler
	StudentLabHandler     *handler.StudentLabHandler
	DraftHandler          *handler.DraftHandler
	EditorHandler         *handler.EditorHandler
	AdminLabHandler       *handler.AdminLabHandler
	AdminAnalyticsHandler *handler.AdminAnalyticsHandler
	HealthProbes          map[string]handler.HealthProbe
	JWTMiddleware         fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	secured := api.Group("", jwtMiddleware)

	// Execution API used by the editor
	if deps.ExecHandler != nil {
		exec := secured.Group("/exec", middleware.RateLimit("exec", cfg.ExecRateLimitPerMinute, time.Minute))
		deps.ExecHandler.Register(exec)
	}

	// Student dashboard, lab pages and problem pages
	if deps.StudentLabHandler != nil {
		deps.StudentLabHandler.Register(secured)
	}

	if deps.DraftHandler != nil {
		deps.DraftHandler.Register(secured.Group("/drafts"))
	}

	if deps.EditorHandler != nil {
		deps.EditorHandler.Register(secured.Group("/editor"))
	}

	// Authoring and analytics for professors
	admin := secured.Group("/admin", middleware.RequireStaff())
	if deps.AdminLabHandler != nil {
		deps.AdminLabHandler.Register(admin)
	}
	if deps.AdminAnalyticsHandler != nil {
		deps.AdminAnalyticsHandler.Register(admin.Group("/analytics"))
	}
}
