package service

import (
	"context"
	"sync"

	"ai-chat-relay-be/pkg/embedding"
	"ai-chat-relay-be/pkg/events"
	"ai-chat-relay-be/pkg/llm"
)

// sliceStream yields fixed fragments, then err (if any).
type sliceStream struct {
	fragments []string
	err       error
	pos       int
	current   string
	closed    bool
}

func (s *sliceStream) Next() bool {
	if s.closed || s.pos >= len(s.fragments) {
		return false
	}
	s.current = s.fragments[s.pos]
	s.pos++
	return true
}

func (s *sliceStream) Fragment() string { return s.current }

func (s *sliceStream) Err() error {
	if s.pos >= len(s.fragments) {
		return s.err
	}
	return nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type fakeProvider struct {
	reply     string
	fragments []string
	streamErr error
	openErr   error
	models    []llm.ModelInfo

	gotHistory []llm.Message
	gotModel   string
	stream     *sliceStream
}

func (f *fakeProvider) options(opts []llm.Option) {
	o := llm.Options{}
	for _, opt := range opts {
		opt(&o)
	}
	f.gotModel = o.Model
}

func (f *fakeProvider) Chat(_ context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	f.gotHistory = history
	f.options(opts)
	if f.openErr != nil {
		return "", f.openErr
	}
	return f.reply, nil
}

func (f *fakeProvider) ChatStream(_ context.Context, history []llm.Message, opts ...llm.Option) (llm.FragmentStream, error) {
	f.gotHistory = history
	f.options(opts)
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.stream = &sliceStream{fragments: f.fragments, err: f.streamErr}
	return f.stream, nil
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

func (f *fakeProvider) ListModels(context.Context) ([]llm.ModelInfo, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.models, nil
}

// letterEmbedder maps text to (count of 'a', count of 'b').
type letterEmbedder struct {
	err error
}

func (l *letterEmbedder) Generate(_ context.Context, text string) (*embedding.EmbeddingResponse, error) {
	if l.err != nil {
		return nil, l.err
	}
	var a, b float32
	for _, r := range text {
		switch r {
		case 'a':
			a++
		case 'b':
			b++
		}
	}
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{a, b}}}, nil
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	return nil
}

func (r *recordingPublisher) events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.got...)
}
