package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-notify-api/internal/dto"
	"github.com/noah-isme/portal-notify-api/pkg/ai"
)

var (
	// ErrAssistantUnavailable indicates no model is configured.
	ErrAssistantUnavailable = errors.New("assistant unavailable")
	// ErrAssistantUpstream indicates the model provider could not be reached.
	ErrAssistantUpstream = errors.New("error connecting to assistant")
)

// AssistantService relays portal users' questions to the chat model.
type AssistantService interface {
	Chat(ctx context.Context, uid string, payload dto.AssistantChatRequest) (dto.AssistantChatResponse, error)
}

type assistantService struct {
	responder ai.Responder
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewAssistantService constructs the chat relay. A nil responder disables it.
func NewAssistantService(responder ai.Responder, validate *validator.Validate, logger zerolog.Logger) AssistantService {
	return &assistantService{
		responder: responder,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "assistant_service").Logger(),
	}
}

func (s *assistantService) Chat(ctx context.Context, uid string, payload dto.AssistantChatRequest) (dto.AssistantChatResponse, error) {
	if s.responder == nil {
		return dto.AssistantChatResponse{}, ErrAssistantUnavailable
	}

	payload.Message = strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(payload.Message)))
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssistantChatResponse{}, err
	}

	reply, err := s.responder.Reply(ctx, payload.Message)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", uid).Msg("assistant request failed")
		return dto.AssistantChatResponse{}, fmt.Errorf("%w: %v", ErrAssistantUpstream, err)
	}
	if strings.TrimSpace(reply) == "" {
		reply = ai.NoReply
	}

	return dto.AssistantChatResponse{Reply: reply}, nil
}
