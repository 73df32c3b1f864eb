package websocket

import (
	"context"
	"time"
	"unicode/utf8"

	"ai-chat-relay-be/internal/dto"
	"ai-chat-relay-be/internal/pkg/logger"
	"ai-chat-relay-be/internal/pkg/serverutils"
	"ai-chat-relay-be/pkg/llm"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	requestWait    = 30 * time.Second
	maxMessageSize = 4 << 20

	// control frame payloads are capped at 125 bytes, two of which hold the code
	maxCloseReason = 123

	sessionModule = "WS_CHAT"
)

// Opener starts the gateway stream for one validated request.
type Opener func(ctx context.Context, req *dto.ChatRequest) (llm.FragmentStream, error)

// ServeChat runs one streamed chat on conn: read a ChatRequest, forward each
// fragment as a text message, then close. A gateway error is reported once in
// the close frame. The gateway stream is released as soon as the peer goes
// away.
func ServeChat(conn *websocket.Conn, open Opener, log logger.ILogger) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(requestWait))

	var req dto.ChatRequest
	if err := conn.ReadJSON(&req); err != nil {
		closeWith(conn, websocket.CloseUnsupportedData, "invalid chat request: "+err.Error())
		return
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go readPump(conn, cancel, done)
	// The conn goes back to a pool once ServeChat returns, so the pump must be
	// gone by then. Closing unblocks its read.
	defer func() {
		_ = conn.Close()
		<-done
	}()

	stream, err := open(ctx, &req)
	if err != nil {
		closeWith(conn, websocket.CloseInternalServerErr, err.Error())
		return
	}
	defer stream.Close()

	for stream.Next() {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(stream.Fragment())); err != nil {
			log.Warn(sessionModule, "Client went away mid-stream", map[string]interface{}{
				"model": req.Model,
				"error": err.Error(),
			})
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := stream.Err(); err != nil {
		closeWith(conn, websocket.CloseInternalServerErr, err.Error())
		return
	}
	closeWith(conn, websocket.CloseNormalClosure, "")
}

// readPump only watches for the peer closing. Frames sent after the request
// are read and dropped.
func readPump(conn *websocket.Conn, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	if len(reason) > maxCloseReason {
		cut := maxCloseReason
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut]
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait),
	)
}
