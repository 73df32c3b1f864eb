package controller

import (
	"bufio"

	"ai-chat-relay-be/internal/dto"
	"ai-chat-relay-be/internal/pkg/logger"
	"ai-chat-relay-be/internal/pkg/serverutils"
	"ai-chat-relay-be/internal/service"
	internalWS "ai-chat-relay-be/internal/websocket"
	"ai-chat-relay-be/pkg/relayclient"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// StreamErrorPrefix marks the single trailing line written when the gateway
// fails after a streamed response has started. relayclient strips it back
// out and reports the rest as an error.
const StreamErrorPrefix = relayclient.StreamErrorPrefix

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Chat(ctx *fiber.Ctx) error
	ListModels(ctx *fiber.Ctx) error
	ChatSocket(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
	logger  logger.ILogger
}

func NewChatController(service service.IChatService, logger logger.ILogger) IChatController {
	return &chatController{service: service, logger: logger}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	r.Post("/chat", c.Chat)
	r.Get("/models", c.ListModels)
	r.Get("/ws/chat", c.ChatSocket)
}

func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if !req.Stream {
		res, err := c.service.SendChat(ctx.UserContext(), &req)
		if err != nil {
			return err
		}
		return ctx.JSON(res)
	}

	// Open before writing headers so that a gateway that is down still gets a
	// proper error status.
	stream, err := c.service.StreamChat(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream; charset=utf-8")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer stream.Close()

		for stream.Next() {
			if _, err := w.WriteString(stream.Fragment()); err != nil {
				return
			}
			// A failed flush means the client disconnected. fasthttp gives no
			// other signal, so a silent model holds the gateway stream until
			// its next fragment.
			if err := w.Flush(); err != nil {
				return
			}
		}

		if err := stream.Err(); err != nil {
			_, _ = w.WriteString(StreamErrorPrefix + err.Error())
			_ = w.Flush()
		}
	})
	return nil
}

func (c *chatController) ListModels(ctx *fiber.Ctx) error {
	res, err := c.service.ListModels(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *chatController) ChatSocket(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		internalWS.ServeChat(conn, c.service.StreamChat, c.logger)
	})(ctx)
}
