// Package relayclient talks to a running relay over HTTP.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"ai-chat-relay-be/pkg/llm"
)

// ChunkSize is how many bytes of a streamed body are read per fragment.
const ChunkSize = 1024

// StreamErrorPrefix marks the in-band line the relay writes when the model
// fails mid-stream.
const StreamErrorPrefix = "\n\n[relay error] "

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// No timeout: replies stream for as long as the model keeps talking.
		HTTP: &http.Client{},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type modelsResponse struct {
	Models []llm.ModelInfo `json:"models"`
}

type envelope struct {
	Message string `json:"message"`
}

// Chat sends a non-streaming request and returns the full reply.
func (c *Client) Chat(ctx context.Context, model string, messages []llm.Message) (string, error) {
	resp, err := c.postChat(ctx, model, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &llm.GatewayError{Kind: llm.ErrKindMalformed, Message: "decode relay response", Cause: err}
	}
	return out.Response, nil
}

// ChatStream sends a streaming request. The returned stream yields the raw
// body in chunks of at most ChunkSize bytes; a chunk may end inside a
// multi-byte character. A trailing StreamErrorPrefix line is stripped and
// surfaces as a *llm.GatewayError from Err.
func (c *Client) ChatStream(ctx context.Context, model string, messages []llm.Message) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.postChat(ctx, model, messages, true)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Stream{body: resp.Body, cancel: cancel, buf: make([]byte, ChunkSize)}, nil
}

func (c *Client) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, llm.TransportError("relay request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &llm.GatewayError{Kind: llm.ErrKindMalformed, Message: "decode model list", Cause: err}
	}
	return out.Models, nil
}

func (c *Client) postChat(ctx context.Context, model string, messages []llm.Message, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{Model: model, Messages: messages, Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, llm.TransportError("relay request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

// statusError surfaces the relay's own message when it sent the standard
// error envelope.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Message != "" {
		return &llm.GatewayError{Kind: llm.ErrKindBadStatus, Status: resp.StatusCode, Message: env.Message}
	}
	return &llm.GatewayError{
		Kind:    llm.ErrKindBadStatus,
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("relay error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
	}
}

// Stream iterates over a streamed reply. It follows the same Next/Err/Close
// contract as llm.FragmentStream but yields bytes. The relay's in-band error
// line never reaches Chunk: it ends the stream and is reported by Err.
type Stream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	buf    []byte

	// pending holds bytes read but not yet handed out. Its tail may be the
	// start of StreamErrorPrefix and is kept until the next read decides.
	pending []byte
	eof     bool

	current  []byte
	err      error
	finished bool

	closeOnce sync.Once
}

func (s *Stream) Next() bool {
	if s.finished {
		return false
	}

	for {
		if i := bytes.Index(s.pending, []byte(StreamErrorPrefix)); i == 0 {
			s.err = s.relayError()
			s.finish()
			return false
		} else if i > 0 {
			return s.emit(i)
		}

		safe := len(s.pending)
		if !s.eof {
			safe -= markerStart(s.pending)
		}
		if safe > 0 {
			return s.emit(safe)
		}
		if s.eof {
			s.finish()
			return false
		}

		n, err := s.body.Read(s.buf)
		s.pending = append(s.pending, s.buf[:n]...)
		if err != nil {
			s.eof = true
			if !errors.Is(err, io.EOF) {
				s.err = llm.TransportError("stream interrupted", err)
			}
		}
	}
}

// emit hands out up to n pending bytes, never more than ChunkSize.
func (s *Stream) emit(n int) bool {
	if n > ChunkSize {
		n = ChunkSize
	}
	s.current = append(s.current[:0], s.pending[:n]...)
	s.pending = s.pending[n:]
	return true
}

// relayError drains the rest of the body after the marker and turns it into
// the error the relay reported.
func (s *Stream) relayError() error {
	msg := s.pending[len(StreamErrorPrefix):]
	if !s.eof {
		rest, _ := io.ReadAll(io.LimitReader(s.body, 64*1024))
		msg = append(msg, rest...)
	}
	return &llm.GatewayError{Kind: llm.ErrKindBadStatus, Message: strings.TrimSpace(string(msg))}
}

// markerStart reports how many trailing bytes of p could begin StreamErrorPrefix.
func markerStart(p []byte) int {
	n := len(StreamErrorPrefix) - 1
	if n > len(p) {
		n = len(p)
	}
	for ; n > 0; n-- {
		if bytes.HasSuffix(p, []byte(StreamErrorPrefix[:n])) {
			return n
		}
	}
	return 0
}

// Chunk returns the bytes handed out by the last successful Next. The slice
// is reused by the following call.
func (s *Stream) Chunk() []byte {
	return s.current
}

func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}

func (s *Stream) finish() {
	s.finished = true
	s.current = nil
	s.pending = nil
	s.Close()
}
