// Package conversation drives one chat session against the relay: it owns no
// state of its own, augments prompts from the current document index and
// renders replies through a Sink.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ai-chat-relay-be/internal/pkg/logger"
	"ai-chat-relay-be/pkg/embedding"
	"ai-chat-relay-be/pkg/llm"
	"ai-chat-relay-be/pkg/rag/index"
	"ai-chat-relay-be/pkg/rag/ingest"
	"ai-chat-relay-be/pkg/rag/retrieval"
	"ai-chat-relay-be/pkg/relayclient"
	"ai-chat-relay-be/pkg/thinktag"
)

const module = "CONVERSATION"

// Conversation is the caller-owned session: model selection and history.
type Conversation struct {
	Model      string
	EmbedModel string
	Messages   []llm.Message
}

// ChunkStream yields raw reply bytes in arbitrary chunks.
type ChunkStream interface {
	Next() bool
	Chunk() []byte
	Err() error
	Close() error
}

type Relay interface {
	Chat(ctx context.Context, model string, messages []llm.Message) (string, error)
	ChatStream(ctx context.Context, model string, messages []llm.Message) (ChunkStream, error)
	ListModels(ctx context.Context) ([]llm.ModelInfo, error)
}

// Sink renders decoded output. Pending carries the provisional tail of the
// answer and may be repeated or superseded; Answer and Reasoning are final.
type Sink interface {
	Reasoning(text string)
	Answer(text string)
	Pending(text string)
	Done()
}

type Controller struct {
	relay    Relay
	pipeline *ingest.Pipeline
	store    *index.Store
	embedder embedding.EmbeddingProvider
	topK     int
	logger   logger.ILogger
}

func NewController(relay Relay, pipeline *ingest.Pipeline, embedder embedding.EmbeddingProvider, topK int, log logger.ILogger) *Controller {
	return &Controller{
		relay:    relay,
		pipeline: pipeline,
		store:    index.NewStore(),
		embedder: embedder,
		topK:     topK,
		logger:   log,
	}
}

// IndexedWindows reports the size of the current document index.
func (c *Controller) IndexedWindows() int {
	if s := c.store.Current(); s != nil {
		return s.Len()
	}
	return 0
}

// LoadDocuments replaces the document index with one built from files. A
// connectivity failure clears the index.
func (c *Controller) LoadDocuments(ctx context.Context, files []ingest.File) (*ingest.Result, error) {
	if c.pipeline == nil {
		return nil, errors.New("document loading is not configured")
	}

	res, err := c.pipeline.Ingest(ctx, files)
	if err != nil {
		c.store.Swap(nil)
		return nil, err
	}
	c.store.Swap(res.Index)

	c.logger.Info(module, "Documents loaded", map[string]interface{}{
		"files":   len(files),
		"loaded":  res.Loaded(),
		"windows": res.Windows,
	})
	return res, nil
}

// Ask appends prompt to the history, sends it (augmented with retrieved
// context when an index is loaded) and renders the reply into sink. On success
// the assistant's answer text is appended once.
func (c *Controller) Ask(ctx context.Context, conv *Conversation, prompt string, stream bool, sink Sink) error {
	conv.Messages = append(conv.Messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	outgoing, err := c.augment(ctx, conv.Messages, prompt)
	if err != nil {
		return err
	}

	var answer string
	if stream {
		answer, err = c.streamReply(ctx, conv.Model, outgoing, sink)
	} else {
		answer, err = c.reply(ctx, conv.Model, outgoing, sink)
	}
	if err != nil {
		c.logger.Error(module, "Chat failed", map[string]interface{}{
			"model":  conv.Model,
			"stream": stream,
			"error":  err.Error(),
		})
		return err
	}

	conv.Messages = append(conv.Messages, llm.Message{Role: llm.RoleAssistant, Content: answer})
	return nil
}

// augment returns a copy of history whose last message carries the RAG
// prompt. The stored history keeps the user's words.
func (c *Controller) augment(ctx context.Context, history []llm.Message, prompt string) ([]llm.Message, error) {
	out := append([]llm.Message(nil), history...)

	topK := c.topK
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	docContext, err := retrieval.BuildContext(ctx, prompt, c.store.Current(), c.embedder, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	out[len(out)-1].Content = retrieval.AugmentPrompt(docContext, prompt)
	return out, nil
}

func (c *Controller) reply(ctx context.Context, model string, messages []llm.Message, sink Sink) (string, error) {
	raw, err := c.relay.Chat(ctx, model, messages)
	if err != nil {
		return "", err
	}

	reasoning, answer := thinktag.Decode(raw)
	for _, r := range reasoning {
		sink.Reasoning(r)
	}
	if answer != "" {
		sink.Answer(answer)
	}
	sink.Done()
	return answer, nil
}

func (c *Controller) streamReply(ctx context.Context, model string, messages []llm.Message, sink Sink) (string, error) {
	s, err := c.relay.ChatStream(ctx, model, messages)
	if err != nil {
		return "", err
	}
	defer s.Close()

	var answer strings.Builder
	dec := thinktag.NewDecoder()
	for s.Next() {
		emit(sink, dec.Write(s.Chunk()), &answer)
	}
	if err := s.Err(); err != nil {
		return "", err
	}

	emit(sink, dec.Flush(), &answer)
	sink.Done()
	return answer.String(), nil
}

func emit(sink Sink, segments []thinktag.Segment, answer *strings.Builder) {
	for _, seg := range segments {
		switch seg.Kind {
		case thinktag.Reasoning:
			sink.Reasoning(seg.Text)
		case thinktag.Answer:
			answer.WriteString(seg.Text)
			sink.Answer(seg.Text)
		case thinktag.Pending:
			sink.Pending(seg.Text)
		}
	}
}

// SelectModel picks the first model whose name contains preferred, else the
// first listed model, else fallback.
func SelectModel(models []llm.ModelInfo, preferred, fallback string) string {
	for _, m := range models {
		if preferred != "" && strings.Contains(m.Name(), preferred) {
			return m.Name()
		}
	}
	for _, m := range models {
		if name := m.Name(); name != "" {
			return name
		}
	}
	return fallback
}

// ClientRelay adapts a relayclient.Client to Relay.
type ClientRelay struct {
	Client *relayclient.Client
}

func (r ClientRelay) Chat(ctx context.Context, model string, messages []llm.Message) (string, error) {
	return r.Client.Chat(ctx, model, messages)
}

func (r ClientRelay) ChatStream(ctx context.Context, model string, messages []llm.Message) (ChunkStream, error) {
	s, err := r.Client.ChatStream(ctx, model, messages)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r ClientRelay) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	return r.Client.ListModels(ctx)
}
