package factory

import (
	"fmt"
	"time"

	"ai-chat-relay-be/pkg/llm"
	"ai-chat-relay-be/pkg/llm/huggingface"
	"ai-chat-relay-be/pkg/llm/ollama"
)

type Settings struct {
	Provider  string
	Model     string
	OllamaURL string
	HFApiKey  string
	HFBaseURL string
	Timeout   time.Duration // non-streaming calls only
}

func NewLLMProvider(s Settings) (llm.LLMProvider, error) {
	switch s.Provider {
	case "ollama", "":
		baseURL := s.OllamaURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		p := ollama.NewOllamaProvider(baseURL, s.Model)
		p.Timeout = s.Timeout
		return p, nil
	case "huggingface":
		p := huggingface.NewHuggingFaceProvider(s.HFApiKey, s.HFBaseURL, s.Model)
		p.Timeout = s.Timeout
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", s.Provider)
	}
}
