package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gradewise/gradewise-api/internal/config"
	"github.com/gradewise/gradewise-api/internal/handler"
	"github.com/gradewise/gradewise-api/internal/middleware"
	"github.com/gradewise/gradewise-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler *handler.GradingHandler
}

// Register wires the HTTP routes into the fiber application. Grading
// triggers sit behind a tighter rate limit than the read endpoints because
// each trigger can fan out a full batch of external calls.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	if deps.GradingHandler != nil {
		assignments := api.Group("/assignments")
		assignments.Use("/:id/grade", middleware.RateLimit("grading", 5, time.Minute))
		assignments.Use("/:id/candidates", middleware.RateLimit("regrade", 10, time.Minute))
		deps.GradingHandler.RegisterAssignments(assignments)

		submissions := api.Group("/submissions")
		deps.GradingHandler.RegisterSubmissions(submissions)
	}
}
