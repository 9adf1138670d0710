package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/campuscode/autograder-api/internal/config"
	"github.com/campuscode/autograder-api/internal/handler"
	"github.com/campuscode/autograder-api/internal/middleware"
	"github.com/campuscode/autograder-api/internal/models"
	"github.com/campuscode/autograder-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	InstructorHandler *handler.InstructorHandler
	StudentHandler    *handler.StudentHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.AuthHandler != nil {
		deps.AuthHandler.Register(app.Group("/api"))
	}

	if deps.InstructorHandler != nil {
		instructor := app.Group("/api/instructor", jwtMiddleware, middleware.RequireRole(models.RoleInstructor))
		deps.InstructorHandler.Register(instructor)
	}

	if deps.StudentHandler != nil {
		student := app.Group("/api/student", jwtMiddleware, middleware.RequireRole(models.RoleStudent))
		// Test runs spin up containers; keep a tight per-student budget.
		student.Use("/run", middleware.RateLimit("student-run", 6, time.Minute))
		deps.StudentHandler.Register(student)
	}
}
