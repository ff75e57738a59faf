package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/portal-notify-api/internal/config"
	"github.com/noah-isme/portal-notify-api/internal/service"
	"github.com/noah-isme/portal-notify-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Feed        string    `json:"feed"`
}

// HealthCheck returns a handler that reports application health information. The feed is
// reported as "degraded" while the activity store cannot be loaded.
func HealthCheck(cfg config.Config, aggregator service.FeedAggregator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		feed := "ok"
		if aggregator != nil && aggregator.Degraded() {
			feed = "degraded"
		}

		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Feed:        feed,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
