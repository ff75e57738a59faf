package ai

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// NoReply is returned to the user when the model produced no usable answer.
const NoReply = "No reply from assistant."

// Responder answers a single free-text message.
type Responder interface {
	Reply(ctx context.Context, message string) (string, error)
}

// ChatCompleter is the part of the OpenAI client a responder needs. *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}
