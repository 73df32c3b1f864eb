package llm

import (
	"context"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// ModelInfo is one catalog entry as reported by the backend. The identifier is
// always under "name"; every other field is passed through untouched.
type ModelInfo map[string]interface{}

// Name returns the model identifier, or "" when the entry has none.
func (m ModelInfo) Name() string {
	name, _ := m["name"].(string)
	return name
}

// FragmentStream is a finite, non-restartable sequence of text fragments.
//
//	for s.Next() {
//		use(s.Fragment())
//	}
//	if err := s.Err(); err != nil { ... }
//
// Close releases the underlying connection and may be called at any time,
// including before the stream is drained. It is safe to call more than once.
type FragmentStream interface {
	Next() bool
	Fragment() string
	Err() error
	Close() error
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// ChatStream opens a single streaming completion. Fragments are yielded in
	// the order the backend produced them.
	ChatStream(ctx context.Context, history []Message, options ...Option) (FragmentStream, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)

	// ListModels returns the backend's model catalog.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}
