package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/portal-notify-api/internal/observability"
)

const defaultSystemPrompt = "You are the assistant of a community portal. Answer questions from members and staff " +
	"about announcements, schedules, meetings and shared resources briefly and in plain text."

// OpenAIConfig defines configuration options for the OpenAI responder.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float32
	SystemPrompt string
	Timeout      time.Duration
	Logger       zerolog.Logger
	// Client overrides the HTTP-backed client built from APIKey and BaseURL.
	Client ChatCompleter
}

// OpenAIResponder implements Responder against the OpenAI chat completion API.
type OpenAIResponder struct {
	client ChatCompleter
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIResponder builds a new responder using the provided configuration.
func NewOpenAIResponder(cfg OpenAIConfig) (*OpenAIResponder, error) {
	if cfg.APIKey == "" && cfg.Client == nil {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}

	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	client := cfg.Client
	if client == nil {
		config := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			config.BaseURL = cfg.BaseURL
		}
		client = openai.NewClientWithConfig(config)
	}

	return &OpenAIResponder{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/portal-notify-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_responder").Logger(),
	}, nil
}

// Model reports the configured chat model.
func (r *OpenAIResponder) Model() string { return r.cfg.Model }

// Reply sends message to OpenAI and returns the first choice. An empty answer yields NoReply.
func (r *OpenAIResponder) Reply(parent context.Context, message string) (string, error) {
	ctx, span := r.tracer.Start(parent, "openai.reply", trace.WithAttributes(
		attribute.String("model", r.cfg.Model),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: r.cfg.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: message,
			},
		},
	}

	resp, err := r.client.CreateChatCompletion(ctx, request)
	observability.AssistantLatency().WithLabelValues(r.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.AssistantFailures().WithLabelValues(r.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error().Err(err).Msg("chat completion failed")
		return "", fmt.Errorf("openai reply: %w", err)
	}

	if len(resp.Choices) == 0 {
		r.logger.Warn().Msg("no choices returned from openai")
		return NoReply, nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return NoReply, nil
	}

	span.SetAttributes(attribute.Int("usage.total_tokens", resp.Usage.TotalTokens))
	return content, nil
}
