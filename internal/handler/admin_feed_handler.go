package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-notify-api/internal/dto"
	"github.com/noah-isme/portal-notify-api/internal/service"
	"github.com/noah-isme/portal-notify-api/internal/utils"
)

// AdminFeedHandler exposes aggregator diagnostics.
type AdminFeedHandler struct {
	aggregator service.FeedAggregator
	store      service.ActivityStore
	logger     zerolog.Logger
}

// NewAdminFeedHandler constructs the handler.
func NewAdminFeedHandler(aggregator service.FeedAggregator, store service.ActivityStore, logger zerolog.Logger) *AdminFeedHandler {
	return &AdminFeedHandler{
		aggregator: aggregator,
		store:      store,
		logger:     logger.With().Str("component", "admin_feed_handler").Logger(),
	}
}

// Register attaches the diagnostics routes to the router group.
func (h *AdminFeedHandler) Register(router fiber.Router) {
	router.Get("/status", h.status)
	router.Post("/reload", h.reload)
}

func (h *AdminFeedHandler) status(c *fiber.Ctx) error {
	snapshot := h.aggregator.Snapshot()
	return utils.SendSuccess(c, "feed status", dto.FeedStatusResponse{
		Version:  snapshot.Version(),
		Records:  snapshot.Len(),
		LoadedAt: snapshot.LoadedAt(),
		Degraded: h.aggregator.Degraded(),
	})
}

// reload asks every node to reload its snapshot.
func (h *AdminFeedHandler) reload(c *fiber.Ctx) error {
	h.store.NotifyChanged(requestContext(c))
	requestLogger(h.logger, c).Info().Str("user_id", userIDFromContext(c)).Msg("feed reload requested")
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "feed reload requested", nil)
}
