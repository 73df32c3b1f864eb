package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"ai-chat-relay-be/pkg/llm"
)

// chatStream turns Ollama's newline-delimited JSON stream into fragments.
type chatStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc

	current  string
	err      error
	finished bool
	lastSeen bool // a done chunk carried content; finish on the next call

	closeOnce sync.Once
}

var _ llm.FragmentStream = (*chatStream)(nil)

func (s *chatStream) Next() bool {
	if s.finished {
		return false
	}
	if s.lastSeen {
		s.finish(nil)
		return false
	}

	for {
		line, readErr := s.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)

		if len(line) > 0 {
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				s.finish(&llm.GatewayError{Kind: llm.ErrKindMalformed, Message: "malformed stream chunk", Cause: err})
				return false
			}
			if chunk.Error != "" {
				s.finish(&llm.GatewayError{Kind: llm.ErrKindBadStatus, Message: chunk.Error})
				return false
			}
			if chunk.Message.Content != "" {
				s.current = chunk.Message.Content
				s.lastSeen = chunk.Done
				return true
			}
			if chunk.Done {
				s.finish(nil)
				return false
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

func (s *chatStream) Fragment() string {
	return s.current
}

func (s *chatStream) Err() error {
	return s.err
}

func (s *chatStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}

func (s *chatStream) finish(err error) {
	s.finished = true
	s.current = ""
	s.err = err
	s.Close()
}
