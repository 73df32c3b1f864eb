package dto

import "ai-chat-relay-be/pkg/llm"

type ChatRequest struct {
	Model    string        `json:"model" validate:"required"`
	Messages []llm.Message `json:"messages" validate:"required,min=1,dive"`
	Stream   bool          `json:"stream"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type ModelListResponse struct {
	Models []llm.ModelInfo `json:"models"`
}
