package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-notify-api/internal/dto"
	"github.com/noah-isme/portal-notify-api/internal/service"
	"github.com/noah-isme/portal-notify-api/internal/utils"
)

// ActivityFeedHandler serves the dashboard "recent activity" widget.
type ActivityFeedHandler struct {
	service   service.NotificationService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewActivityFeedHandler constructs the handler instance.
func NewActivityFeedHandler(service service.NotificationService, validator *validator.Validate, logger zerolog.Logger) *ActivityFeedHandler {
	return &ActivityFeedHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "activity_feed_handler").Logger(),
	}
}

// Register wires the activity feed routes.
func (h *ActivityFeedHandler) Register(router fiber.Router) {
	router.Get("/recent", h.recent)
}

func (h *ActivityFeedHandler) recent(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	all := false
	if raw := c.Query("all"); raw != "" {
		all, err = strconv.ParseBool(raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid all flag")
		}
	}

	query := dto.RecentActivityQuery{Limit: limit, All: all}
	if err := h.validator.Struct(query); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid query", validationDetails(err))
	}

	result, err := h.service.Recent(requestContext(c), userID, query)
	if err != nil {
		if errors.Is(err, service.ErrViewerNotFound) {
			return utils.SendError(c, fiber.StatusForbidden, "viewer profile not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to fetch recent activity")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to fetch activities")
	}

	return utils.SendSuccess(c, "recent activity retrieved", result)
}
