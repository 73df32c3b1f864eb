package controller

import (
	"io"

	"ai-chat-relay-be/internal/dto"
	"ai-chat-relay-be/internal/pkg/serverutils"
	"ai-chat-relay-be/internal/service"
	"ai-chat-relay-be/pkg/rag/ingest"
	"ai-chat-relay-be/pkg/rag/loader"

	"github.com/gofiber/fiber/v2"
)

type IDocumentController interface {
	RegisterRoutes(r fiber.Router)
	Upload(ctx *fiber.Ctx) error
	BuildContext(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type documentController struct {
	service      service.IDocumentService
	defaultModel string
}

func NewDocumentController(service service.IDocumentService, defaultModel string) IDocumentController {
	return &documentController{service: service, defaultModel: defaultModel}
}

func (c *documentController) RegisterRoutes(r fiber.Router) {
	r.Post("/documents", c.Upload)
	r.Post("/context", c.BuildContext)
	r.Get("/health", c.Health)
}

func (c *documentController) Upload(ctx *fiber.Ctx) error {
	form, err := ctx.MultipartForm()
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Multipart form with 'files' is required"))
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "At least one file is required"))
	}

	files := make([]ingest.File, 0, len(headers))
	for _, h := range headers {
		declared := h.Header.Get(fiber.HeaderContentType)
		if declared == "" || declared == fiber.MIMEOctetStream {
			// curl and some browsers omit the type
			if byExt := loader.TypeForFilename(h.Filename); byExt != "" {
				declared = byExt
			}
		}
		files = append(files, ingest.File{
			Name:         h.Filename,
			DeclaredType: declared,
			Size:         h.Size,
			Open: func() (io.ReadCloser, error) {
				return h.Open()
			},
		})
	}

	res, err := c.service.Ingest(ctx.UserContext(), files)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Documents processed", res))
}

func (c *documentController) BuildContext(ctx *fiber.Ctx) error {
	var req dto.BuildContextRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.BuildContext(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Context built", res))
}

func (c *documentController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("OK", dto.HealthResponse{
		Status:         "ok",
		IndexedWindows: c.service.IndexedWindows(),
		DefaultModel:   c.defaultModel,
	}))
}
