package serverutils

import (
	"errors"

	"ai-chat-relay-be/pkg/embedding"
	"ai-chat-relay-be/pkg/llm"
	"ai-chat-relay-be/pkg/rag/ingest"

	"github.com/gofiber/fiber/v2"
)

const OllamaUnavailableMessage = "Failed to connect to Ollama. Make sure it's running and accessible."

// StatusFor classifies an error returned by a handler.
func StatusFor(err error) (int, string) {
	var (
		validationErr *ValidationError
		gatewayErr    *llm.GatewayError
		ingestConnErr *ingest.EmbeddingConnectivityError
		embedConnErr  *embedding.ConnectivityError
		fiberErr      *fiber.Error
	)

	switch {
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest, validationErr.Error()
	case errors.As(err, &ingestConnErr), errors.As(err, &embedConnErr):
		return fiber.StatusServiceUnavailable, OllamaUnavailableMessage
	case errors.As(err, &gatewayErr):
		return fiber.StatusBadGateway, gatewayErr.Error()
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	default:
		return fiber.StatusInternalServerError, err.Error()
	}
}

// ErrorHandlerMiddleware turns handler errors into the standard envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		code, message := StatusFor(err)

		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return c.Status(code).JSON(ErrorResponseWithData(code, "Validation failed", validationErr.Fields))
		}
		return c.Status(code).JSON(ErrorResponse(code, message))
	}
}
