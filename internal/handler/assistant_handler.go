package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-notify-api/internal/dto"
	"github.com/noah-isme/portal-notify-api/internal/service"
	"github.com/noah-isme/portal-notify-api/internal/utils"
)

// AssistantHandler exposes the chat relay.
type AssistantHandler struct {
	service service.AssistantService
	logger  zerolog.Logger
}

// NewAssistantHandler constructs an assistant handler.
func NewAssistantHandler(service service.AssistantService, logger zerolog.Logger) *AssistantHandler {
	return &AssistantHandler{
		service: service,
		logger:  logger.With().Str("component", "assistant_handler").Logger(),
	}
}

// Register wires the assistant routes. Extra handlers run before chat, typically a rate limiter.
func (h *AssistantHandler) Register(router fiber.Router, middlewares ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, middlewares...), h.chat)
	router.Post("/chat", handlers...)
}

func (h *AssistantHandler) chat(c *fiber.Ctx) error {
	var payload dto.AssistantChatRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	resp, err := h.service.Chat(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.Fail(c, fiber.StatusBadRequest, "invalid message", validationDetails(err))
		case errors.Is(err, service.ErrAssistantUnavailable):
			return utils.SendError(c, fiber.StatusServiceUnavailable, "assistant unavailable")
		case errors.Is(err, service.ErrAssistantUpstream):
			return utils.SendError(c, fiber.StatusBadGateway, "error connecting to assistant")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("assistant chat failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "assistant request failed")
		}
	}

	return utils.SendSuccess(c, "assistant reply", resp)
}
