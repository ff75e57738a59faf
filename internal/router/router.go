package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/portal-notify-api/internal/access"
	"github.com/noah-isme/portal-notify-api/internal/config"
	"github.com/noah-isme/portal-notify-api/internal/handler"
	"github.com/noah-isme/portal-notify-api/internal/middleware"
	"github.com/noah-isme/portal-notify-api/internal/observability"
	"github.com/noah-isme/portal-notify-api/internal/service"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	NotificationHandler *handler.NotificationHandler
	ActivityFeedHandler *handler.ActivityFeedHandler
	AssistantHandler    *handler.AssistantHandler
	SeedHandler         *handler.SeedHandler
	AdminFeedHandler    *handler.AdminFeedHandler
	Aggregator          service.FeedAggregator
	Viewers             middleware.ViewerResolver
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Aggregator))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(api.Group("/notifications", jwtMiddleware))
	}

	if deps.ActivityFeedHandler != nil {
		deps.ActivityFeedHandler.Register(api.Group("/activity", jwtMiddleware))
	}

	if deps.AssistantHandler != nil {
		deps.AssistantHandler.Register(
			api.Group("/assistant", jwtMiddleware),
			middleware.RateLimit("assistant", cfg.AssistantRateLimit, cfg.AssistantRateWindow),
		)
	}

	// Seed endpoints authenticate with X-Seed-Token instead of a bearer token.
	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/seed"))
	}

	if deps.AdminFeedHandler != nil {
		deps.AdminFeedHandler.Register(api.Group("/admin/feed", jwtMiddleware, middleware.RequireRole(deps.Viewers, access.RoleAdmin)))
	}
}
