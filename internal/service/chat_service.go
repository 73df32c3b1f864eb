package service

import (
	"context"
	"time"

	"ai-chat-relay-be/internal/dto"
	"ai-chat-relay-be/internal/pkg/logger"
	"ai-chat-relay-be/pkg/llm"
)

const chatModule = "CHAT_RELAY"

// IChatService relays chat requests to the model gateway. It keeps no state
// between requests.
type IChatService interface {
	SendChat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error)
	// StreamChat opens one gateway stream. The caller owns the returned stream
	// and must Close it on every path.
	StreamChat(ctx context.Context, req *dto.ChatRequest) (llm.FragmentStream, error)
	ListModels(ctx context.Context) (*dto.ModelListResponse, error)
}

type chatService struct {
	provider llm.LLMProvider
	logger   logger.ILogger
}

func NewChatService(provider llm.LLMProvider, logger logger.ILogger) IChatService {
	return &chatService{provider: provider, logger: logger}
}

func (s *chatService) SendChat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	start := time.Now()
	text, err := s.provider.Chat(ctx, req.Messages, llm.WithModel(req.Model))
	if err != nil {
		s.logger.Error(chatModule, "Chat failed", map[string]interface{}{
			"model": req.Model,
			"error": err.Error(),
		})
		return nil, err
	}

	s.logger.Info(chatModule, "Chat completed", map[string]interface{}{
		"model":       req.Model,
		"messages":    len(req.Messages),
		"chars":       len(text),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return &dto.ChatResponse{Response: text}, nil
}

func (s *chatService) StreamChat(ctx context.Context, req *dto.ChatRequest) (llm.FragmentStream, error) {
	stream, err := s.provider.ChatStream(ctx, req.Messages, llm.WithModel(req.Model))
	if err != nil {
		s.logger.Error(chatModule, "Stream failed to open", map[string]interface{}{
			"model": req.Model,
			"error": err.Error(),
		})
		return nil, err
	}

	s.logger.Debug(chatModule, "Stream opened", map[string]interface{}{"model": req.Model})
	return &loggedStream{FragmentStream: stream, logger: s.logger, model: req.Model, start: time.Now()}, nil
}

func (s *chatService) ListModels(ctx context.Context) (*dto.ModelListResponse, error) {
	models, err := s.provider.ListModels(ctx)
	if err != nil {
		s.logger.Error(chatModule, "Model listing failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	if models == nil {
		models = []llm.ModelInfo{}
	}
	return &dto.ModelListResponse{Models: models}, nil
}

// loggedStream passes fragments through untouched and logs once when the
// stream ends or is abandoned.
type loggedStream struct {
	llm.FragmentStream
	logger    logger.ILogger
	model     string
	start     time.Time
	fragments int
	done      bool
}

func (l *loggedStream) Next() bool {
	if l.FragmentStream.Next() {
		l.fragments++
		return true
	}
	l.finish(false)
	return false
}

func (l *loggedStream) Close() error {
	err := l.FragmentStream.Close()
	l.finish(true)
	return err
}

func (l *loggedStream) finish(closedEarly bool) {
	if l.done {
		return
	}
	l.done = true

	details := map[string]interface{}{
		"model":       l.model,
		"fragments":   l.fragments,
		"duration_ms": time.Since(l.start).Milliseconds(),
	}
	if err := l.Err(); err != nil {
		details["error"] = err.Error()
		l.logger.Error(chatModule, "Stream terminated by gateway error", details)
		return
	}
	if closedEarly {
		l.logger.Warn(chatModule, "Stream abandoned by caller", details)
		return
	}
	l.logger.Info(chatModule, "Stream completed", details)
}
