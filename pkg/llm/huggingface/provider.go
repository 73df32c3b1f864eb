package huggingface

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"ai-chat-relay-be/pkg/llm"
)

// HuggingFaceProvider talks to the OpenAI-compatible router API. Any server
// exposing /chat/completions and /models in that shape works too.
type HuggingFaceProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client

	// Timeout bounds non-streaming calls only.
	Timeout time.Duration
}

var _ llm.LLMProvider = &HuggingFaceProvider{}

// Request Payload Structure (OpenAI Compatible)
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type apiError struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type modelsResponse struct {
	Data []map[string]interface{} `json:"data"`
}

func NewHuggingFaceProvider(apiKey, baseURL, model string) *HuggingFaceProvider {
	if baseURL == "" {
		baseURL = "https://router.huggingface.co/v1" // Default Router URL
	}
	return &HuggingFaceProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (p *HuggingFaceProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	resp, err := p.postChat(ctx, history, false, options)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.TransportError("read huggingface response", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(bodyBytes, &chatResp); err != nil {
		return "", &llm.GatewayError{Kind: llm.ErrKindMalformed, Message: "failed to decode response", Cause: err}
	}
	if chatResp.Error != nil {
		return "", &llm.GatewayError{Kind: llm.ErrKindBadStatus, Message: chatResp.Error.Message}
	}
	if len(chatResp.Choices) == 0 {
		return "", &llm.GatewayError{Kind: llm.ErrKindMalformed, Message: "empty choices from huggingface api"}
	}

	return chatResp.Choices[0].Message.Content, nil
}

func (p *HuggingFaceProvider) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (llm.FragmentStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := p.postChat(ctx, history, true, options)
	if err != nil {
		cancel()
		return nil, err
	}
	return &sseStream{body: resp.Body, reader: bufio.NewReader(resp.Body), cancel: cancel}, nil
}

func (p *HuggingFaceProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	// Wrap single prompt into a user message
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}
	return p.Chat(ctx, messages, options...)
}

// ListModels maps the OpenAI-style "id" onto "name" so callers see the same
// catalog shape as Ollama's.
func (p *HuggingFaceProvider) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, &llm.GatewayError{Kind: llm.ErrKindUnreachable, Message: "create request", Cause: err}
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, llm.TransportError("huggingface request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var body modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &llm.GatewayError{Kind: llm.ErrKindMalformed, Message: "failed to decode model list", Cause: err}
	}

	models := make([]llm.ModelInfo, 0, len(body.Data))
	for _, m := range body.Data {
		info := llm.ModelInfo{}
		for k, v := range m {
			if k == "id" {
				info["name"] = v
				continue
			}
			info[k] = v
		}
		models = append(models, info)
	}
	return models, nil
}

func (p *HuggingFaceProvider) postChat(ctx context.Context, history []llm.Message, stream bool, options []llm.Option) (*http.Response, error) {
	opts := &llm.Options{
		Model:     p.model,
		MaxTokens: 500, // Default sane limit
	}
	for _, o := range options {
		o(opts)
	}

	reqBody := chatRequest{
		Model:       opts.Model,
		Messages:    history,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &llm.GatewayError{Kind: llm.ErrKindUnreachable, Message: "create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, llm.TransportError("huggingface request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

func (p *HuggingFaceProvider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	}
}

func statusError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var wrapped struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &wrapped); err == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
		return &llm.GatewayError{Kind: llm.ErrKindBadStatus, Status: resp.StatusCode, Message: wrapped.Error.Message}
	}
	return &llm.GatewayError{
		Kind:    llm.ErrKindBadStatus,
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("huggingface api error (status %d): %s", resp.StatusCode, string(bodyBytes)),
	}
}

// sseStream reads "data: {...}" events until "data: [DONE]".
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc

	current  string
	err      error
	finished bool

	closeOnce sync.Once
}

var _ llm.FragmentStream = (*sseStream)(nil)

func (s *sseStream) Next() bool {
	if s.finished {
		return false
	}

	for {
		line, readErr := s.reader.ReadString('\n')
		line = strings.TrimSpace(line)

		if data, ok := strings.CutPrefix(line, "data:"); ok {
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				s.finish(nil)
				return false
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				s.finish(&llm.GatewayError{Kind: llm.ErrKindMalformed, Message: "malformed stream chunk", Cause: err})
				return false
			}
			if chunk.Error != nil {
				s.finish(&llm.GatewayError{Kind: llm.ErrKindBadStatus, Message: chunk.Error.Message})
				return false
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				s.current = chunk.Choices[0].Delta.Content
				return true
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.finish(&llm.GatewayError{Kind: llm.ErrKindMalformed, Message: "stream ended before completion"})
			} else {
				s.finish(llm.TransportError("stream interrupted", readErr))
			}
			return false
		}
	}
}

func (s *sseStream) Fragment() string {
	return s.current
}

func (s *sseStream) Err() error {
	return s.err
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}

func (s *sseStream) finish(err error) {
	s.finished = true
	s.current = ""
	s.err = err
	s.Close()
}
