package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-notify-api/internal/activity"
	"github.com/noah-isme/portal-notify-api/internal/dto"
	"github.com/noah-isme/portal-notify-api/internal/observability"
	"github.com/noah-isme/portal-notify-api/internal/service"
	"github.com/noah-isme/portal-notify-api/internal/utils"
)

// NotificationHandler serves the notification feed, its live streams and its actions.
type NotificationHandler struct {
	service   service.NotificationService
	validator *validator.Validate
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(service service.NotificationService, validator *validator.Validate, logger zerolog.Logger, keepAlive time.Duration) *NotificationHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &NotificationHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "notification_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/", h.list)
	router.Get("/unread-count", h.unreadCount)
	router.Get("/stream", h.stream)
	router.Get("/ws", websocket.New(h.handleConnection))
	router.Post("/:id/open", h.open)
	router.Post("/:id/read", h.markRead)
	router.Post("/:id/verify", h.verify)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	query := dto.FeedQuery{Tab: c.Query("tab")}
	if err := h.validator.Struct(query); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid tab", validationDetails(err))
	}

	feed, err := h.service.Feed(requestContext(c), userID, activity.ParseTab(query.Tab))
	if err != nil {
		return h.notificationError(c, err)
	}

	return utils.OK(c, feed, "notifications", fiber.Map{"version": feed.Version, "unread_count": feed.UnreadCount})
}

func (h *NotificationHandler) unreadCount(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	count, err := h.service.UnreadCount(requestContext(c), userID)
	if err != nil {
		return h.notificationError(c, err)
	}

	return utils.SendSuccess(c, "unread count", count)
}

func (h *NotificationHandler) stream(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	ctx, cancel := context.WithCancel(requestContext(c))
	events, cleanup, err := h.service.Subscribe(ctx, userID)
	if err != nil {
		cancel()
		return h.notificationError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	keepAliveInterval := h.keepAlive

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		clients := observability.StreamClients().WithLabelValues("sse")
		clients.Inc()
		defer func() {
			clients.Dec()
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(keepAliveInterval / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeStreamEvent(w, event); err != nil {
					h.logger.Debug().Err(err).Str("user_id", userID).Msg("failed to write feed event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Str("user_id", userID).Msg("failed to write feed keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (h *NotificationHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	events, cleanup, err := h.service.Subscribe(ctx, userID)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		_ = conn.Close()
		return
	}
	defer cleanup()

	clients := observability.StreamClients().WithLabelValues("websocket")
	clients.Inc()
	defer clients.Dec()

	h.logger.Info().Str("user_id", userID).Msg("feed websocket connected")
	defer h.logger.Info().Str("user_id", userID).Msg("feed websocket disconnected")

	// The client never sends data; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.keepAlive / 2)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Str("user_id", userID).Msg("failed to write feed event")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}

func (h *NotificationHandler) open(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	result, err := h.service.Open(requestContext(c), userID, c.Params("id"))
	if err != nil {
		return h.notificationError(c, err)
	}

	return utils.SendSuccess(c, "notification opened", result)
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id := c.Params("id")
	if err := h.service.MarkRead(requestContext(c), userID, id); err != nil {
		return h.notificationError(c, err)
	}

	return utils.SendSuccess(c, "notification marked as read", fiber.Map{"id": id})
}

func (h *NotificationHandler) verify(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	result, err := h.service.Verify(requestContext(c), userID, c.Params("id"))
	if err != nil {
		return h.notificationError(c, err)
	}

	return utils.SendSuccess(c, "registration verified", result)
}

func (h *NotificationHandler) notificationError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotificationNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "notification not found")
	case errors.Is(err, service.ErrViewerNotFound):
		return utils.SendError(c, fiber.StatusForbidden, "viewer profile not found")
	case errors.Is(err, service.ErrActionForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "action not permitted")
	case errors.Is(err, service.ErrAlreadySolved):
		return utils.SendError(c, fiber.StatusConflict, "registration already solved")
	case errors.Is(err, service.ErrUnsupportedAction):
		return utils.SendError(c, fiber.StatusBadRequest, "unsupported action for notification")
	case errors.Is(err, service.ErrVerificationIncomplete):
		requestLogger(h.logger, c).Error().Err(err).Msg("verification incomplete")
		return utils.SendError(c, fiber.StatusBadGateway, "verification incomplete")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("notification request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to process notification request")
	}
}

func writeStreamEvent(w *bufio.Writer, event dto.FeedStreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", event.Event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
