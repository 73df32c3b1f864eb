package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ai-chat-relay-be/internal/dto"
	"ai-chat-relay-be/internal/pkg/logger"
	"ai-chat-relay-be/internal/pkg/serverutils"
	"ai-chat-relay-be/pkg/llm"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fragmentStream struct {
	fragments []string
	err       error
	pos       int
	closed    chan struct{}

	// gate, when set, holds the stream after its first fragment.
	gate chan struct{}
}

func newFragmentStream(err error, fragments ...string) *fragmentStream {
	return &fragmentStream{fragments: fragments, err: err, closed: make(chan struct{})}
}

func (s *fragmentStream) Next() bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	if s.pos >= len(s.fragments) {
		return false
	}
	if s.gate != nil && s.pos == 1 {
		select {
		case <-s.gate:
		case <-s.closed:
			return false
		}
	}
	s.pos++
	return true
}

func (s *fragmentStream) Fragment() string { return s.fragments[s.pos-1] }

func (s *fragmentStream) Err() error {
	if s.pos >= len(s.fragments) {
		return s.err
	}
	return nil
}

func (s *fragmentStream) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

type fakeChatService struct {
	reply   string
	stream  *fragmentStream
	err     error
	models  []llm.ModelInfo
	lastReq *dto.ChatRequest
}

func (f *fakeChatService) SendChat(_ context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ChatResponse{Response: f.reply}, nil
}

func (f *fakeChatService) StreamChat(_ context.Context, req *dto.ChatRequest) (llm.FragmentStream, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func (f *fakeChatService) ListModels(context.Context) (*dto.ModelListResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ModelListResponse{Models: f.models}, nil
}

func newChatApp(svc *fakeChatService) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewChatController(svc, logger.NewNopLogger()).RegisterRoutes(app)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) (int, []byte, string) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out, resp.Header.Get("Content-Type")
}

var hello = map[string]interface{}{
	"model":    "llama3.2:latest",
	"messages": []map[string]string{{"role": "user", "content": "hi"}},
}

func withStream(stream bool) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range hello {
		out[k] = v
	}
	out["stream"] = stream
	return out
}

func TestChat_NonStreaming(t *testing.T) {
	svc := &fakeChatService{reply: "<think>x</think>Hi there"}
	status, body, _ := postJSON(t, newChatApp(svc), "/chat", withStream(false))

	assert.Equal(t, 200, status)
	assert.JSONEq(t, `{"response":"<think>x</think>Hi there"}`, string(body))
	assert.Equal(t, "llama3.2:latest", svc.lastReq.Model)
}

func TestChat_StreamingForwardsRawFragments(t *testing.T) {
	stream := newFragmentStream(nil, "Hel", "lo, ", "world")
	svc := &fakeChatService{stream: stream}
	status, body, contentType := postJSON(t, newChatApp(svc), "/chat", withStream(true))

	assert.Equal(t, 200, status)
	assert.True(t, strings.HasPrefix(contentType, "text/event-stream"))
	assert.Equal(t, "Hello, world", string(body))

	select {
	case <-stream.closed:
	case <-time.After(time.Second):
		t.Fatal("upstream stream was not closed")
	}
}

func TestChat_StreamingReportsMidStreamErrorOnce(t *testing.T) {
	boom := &llm.GatewayError{Kind: llm.ErrKindMalformed, Message: "stream ended before completion"}
	svc := &fakeChatService{stream: newFragmentStream(boom, "partial ")}
	status, body, _ := postJSON(t, newChatApp(svc), "/chat", withStream(true))

	assert.Equal(t, 200, status)
	assert.Equal(t, "partial "+StreamErrorPrefix+boom.Error(), string(body))
}

func TestChat_GatewayDownIsBadGateway(t *testing.T) {
	svc := &fakeChatService{err: &llm.GatewayError{Kind: llm.ErrKindUnreachable, Message: "connection refused"}}

	for _, stream := range []bool{false, true} {
		status, body, _ := postJSON(t, newChatApp(svc), "/chat", withStream(stream))
		assert.Equal(t, 502, status)
		assert.Contains(t, string(body), "connection refused")
	}
}

func TestChat_Validation(t *testing.T) {
	app := newChatApp(&fakeChatService{})

	status, body, _ := postJSON(t, app, "/chat", map[string]interface{}{"model": "m", "messages": []interface{}{}})
	assert.Equal(t, 400, status)
	assert.Contains(t, string(body), "Messages")

	status, _, _ = postJSON(t, app, "/chat", map[string]interface{}{
		"model":    "m",
		"messages": []map[string]string{{"role": "robot", "content": "x"}},
	})
	assert.Equal(t, 400, status)

	req := httptest.NewRequest("POST", "/chat", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestListModels(t *testing.T) {
	svc := &fakeChatService{models: []llm.ModelInfo{{"name": "llama3.2:latest", "size": 2019393189}}}

	resp, err := newChatApp(svc).Test(httptest.NewRequest("GET", "/models", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Models []map[string]interface{} `json:"models"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Models, 1)
	assert.Equal(t, "llama3.2:latest", body.Models[0]["name"])
}

func TestChatSocket_RequiresUpgrade(t *testing.T) {
	resp, err := newChatApp(&fakeChatService{}).Test(httptest.NewRequest("GET", "/ws/chat", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func dialChat(t *testing.T, svc *fakeChatService) *fastws.Conn {
	t.Helper()
	app := newChatApp(svc)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/chat", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestChatSocket_StreamsFragmentsThenClosesNormally(t *testing.T) {
	svc := &fakeChatService{stream: newFragmentStream(nil, "Hel", "lo, ", "world")}
	conn := dialChat(t, svc)
	require.NoError(t, conn.WriteJSON(withStream(true)))

	var got []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, fastws.IsCloseError(err, fastws.CloseNormalClosure), "unexpected close: %v", err)
			break
		}
		got = append(got, string(msg))
	}
	assert.Equal(t, []string{"Hel", "lo, ", "world"}, got)
}

func TestChatSocket_ErrorInCloseFrame(t *testing.T) {
	boom := &llm.GatewayError{Kind: llm.ErrKindTimeout, Message: "gateway timed out"}
	svc := &fakeChatService{stream: newFragmentStream(boom, "par")}
	conn := dialChat(t, svc)
	require.NoError(t, conn.WriteJSON(withStream(true)))

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "par", string(msg))

	_, _, err = conn.ReadMessage()
	var closeErr *fastws.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, fastws.CloseInternalServerErr, closeErr.Code)
	assert.Contains(t, closeErr.Text, "gateway timed out")
}

func TestChatSocket_InvalidRequest(t *testing.T) {
	conn := dialChat(t, &fakeChatService{})
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"model": "m"}))

	_, _, err := conn.ReadMessage()
	var closeErr *fastws.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, fastws.ClosePolicyViolation, closeErr.Code)
}

func TestChatSocket_ExtraFrameMidStream(t *testing.T) {
	stream := newFragmentStream(nil, "Hel", "lo, ", "world")
	stream.gate = make(chan struct{})
	conn := dialChat(t, &fakeChatService{stream: stream})
	require.NoError(t, conn.WriteJSON(withStream(true)))

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "Hel", string(msg))

	// Clients are not expected to talk after the request; the session drops it.
	require.NoError(t, conn.WriteMessage(fastws.TextMessage, []byte("are you there?")))
	time.Sleep(20 * time.Millisecond)
	close(stream.gate)

	got := []string{string(msg)}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, fastws.IsCloseError(err, fastws.CloseNormalClosure), "unexpected close: %v", err)
			break
		}
		got = append(got, string(msg))
	}
	assert.Equal(t, []string{"Hel", "lo, ", "world"}, got)

	select {
	case <-stream.closed:
	case <-time.After(time.Second):
		t.Fatal("gateway stream was not released")
	}
}
