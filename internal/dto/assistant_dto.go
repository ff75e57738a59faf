package dto

// AssistantChatRequest is the body accepted by the chat relay.
type AssistantChatRequest struct {
	Message string `json:"message" validate:"required,min=1,max=4000"`
}

// AssistantChatResponse wraps the assistant reply.
type AssistantChatResponse struct {
	Reply string `json:"reply"`
}
