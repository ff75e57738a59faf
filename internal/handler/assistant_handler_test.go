package handler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-notify-api/internal/handler"
	"github.com/noah-isme/portal-notify-api/internal/middleware"
	"github.com/noah-isme/portal-notify-api/internal/service"
	"github.com/noah-isme/portal-notify-api/pkg/ai"
)

type fakeResponder struct {
	reply string
	err   error
}

func (f fakeResponder) Reply(context.Context, string) (string, error) { return f.reply, f.err }

func newAssistantApp(responder ai.Responder, limit int) *fiber.App {
	app := fiber.New()
	app.Use(withUser)
	svc := service.NewAssistantService(responder, validator.New(validator.WithRequiredStructEnabled()), zerolog.New(io.Discard))
	handler.NewAssistantHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/v1/assistant"), middleware.RateLimit("assistant", limit, time.Minute))
	return app
}

func postChat(t *testing.T, app *fiber.App, user, message string) *http.Response {
	t.Helper()
	body := []byte(fmt.Sprintf(`{"message":%q}`, message))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAssistantHandlerChat(t *testing.T) {
	app := newAssistantApp(fakeResponder{reply: "The fair starts at noon."}, 10)

	resp := postChat(t, app, "u1", "When does the fair start?")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Reply string `json:"reply"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "The fair starts at noon.", body.Data.Reply)
}

func TestAssistantHandlerErrors(t *testing.T) {
	resp := postChat(t, newAssistantApp(nil, 10), "u1", "hi")
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp = postChat(t, newAssistantApp(fakeResponder{err: errors.New("dial tcp: refused")}, 10), "u1", "hi")
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	var body struct {
		Message string `json:"message"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "error connecting to assistant", body.Message)

	resp = postChat(t, newAssistantApp(fakeResponder{reply: "x"}, 10), "u1", strings.Repeat("a", 4001))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAssistantHandlerRateLimit(t *testing.T) {
	app := newAssistantApp(fakeResponder{reply: "ok"}, 1)

	require.Equal(t, fiber.StatusOK, postChat(t, app, "u1", "one").StatusCode)
	require.Equal(t, fiber.StatusTooManyRequests, postChat(t, app, "u1", "two").StatusCode)
	require.Equal(t, fiber.StatusOK, postChat(t, app, "u2", "one").StatusCode)
}
