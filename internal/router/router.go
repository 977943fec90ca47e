package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/acadops/campus-api/internal/config"
	"github.com/acadops/campus-api/internal/handler"
	"github.com/acadops/campus-api/internal/middleware"
	"github.com/acadops/campus-api/internal/models"
	"github.com/acadops/campus-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler *handler.AssignmentHandler
	SubmissionHandler *handler.SubmissionHandler
	ActivityHandler   *handler.ActivityHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.AssignmentHandler != nil {
		assignments := api.Group("/assignments", jwtMiddleware)
		deps.AssignmentHandler.Register(assignments)
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware,
			middleware.RateLimit("submissions", 30, time.Minute))
		deps.SubmissionHandler.Register(submissions)
	}

	if deps.ActivityHandler != nil {
		activities := api.Group("/activities", jwtMiddleware,
			middleware.RequireRole(models.RoleAdmin))
		deps.ActivityHandler.Register(activities)
	}
}
