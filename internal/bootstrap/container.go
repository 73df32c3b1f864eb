package bootstrap

import (
	"fmt"
	"log"
	"strings"

	"ai-chat-relay-be/internal/config"
	"ai-chat-relay-be/internal/controller"
	"ai-chat-relay-be/internal/pkg/logger"
	"ai-chat-relay-be/internal/service"
	"ai-chat-relay-be/pkg/embedding"
	"ai-chat-relay-be/pkg/events"
	"ai-chat-relay-be/pkg/llm/factory"
	"ai-chat-relay-be/pkg/rag/chunk"
	"ai-chat-relay-be/pkg/rag/index"
	"ai-chat-relay-be/pkg/rag/ingest"

	pktNats "ai-chat-relay-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController     controller.IChatController
	DocumentController controller.IDocumentController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	Logger logger.ILogger

	closers []func()
}

// NewContainer wires every component. db may be nil unless INDEX_BACKEND is
// "pgvector".
func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	c := &Container{Logger: sysLogger}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermillLogger)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	publisher := events.Fanout{service.NewPublisherService(cfg.Events.Topic, pubSub)}
	consumerService := service.NewConsumerService(pubSub, cfg.Events.Topic, sysLogger)

	if cfg.Events.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.Events.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			publisher = append(publisher, natsPub)
			c.closers = append(c.closers, natsPub.Close)
		}

		natsSub, err := pktNats.NewSubscriber(cfg.Events.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		} else {
			if err := natsSub.Subscribe(events.TypeIngestionCompleted, "relay-ingestion-log", consumerService.HandleEvent); err != nil {
				log.Printf("[WARN] Failed to subscribe to NATS: %v", err)
			}
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	// 3. Providers
	llmProvider, err := factory.NewLLMProvider(factory.Settings{
		Provider:  cfg.Ai.Provider,
		Model:     cfg.Ai.DefaultModel,
		OllamaURL: cfg.Ai.OllamaHost,
		HFApiKey:  cfg.Ai.HFApiKey,
		HFBaseURL: cfg.Ai.HFBaseURL,
		Timeout:   cfg.Ai.GatewayTimeout,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Using LLM Provider: %s (default model %s)", strings.ToUpper(cfg.Ai.Provider), cfg.Ai.DefaultModel)

	embeddingProvider := embedding.NewOllamaProvider(cfg.Ai.OllamaHost, cfg.Ai.DefaultEmbedModel)
	queryEmbedder := embedding.NewCachedProvider(embeddingProvider, cfg.Rag.QueryCacheTTL)
	log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.DefaultEmbedModel)

	// 4. Retrieval
	splitter, err := chunk.New(cfg.Rag.Splitter, cfg.Rag.ChunkSize, cfg.Rag.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	var builder index.Builder
	switch cfg.Rag.IndexBackend {
	case "", "memory":
		builder = index.MemoryBuilder{}
	case "pgvector":
		if db == nil {
			return nil, fmt.Errorf("INDEX_BACKEND=pgvector requires DB_CONNECTION_STRING")
		}
		builder = index.NewPgvectorBuilder(db)
	default:
		return nil, fmt.Errorf("unknown index backend: %s", cfg.Rag.IndexBackend)
	}
	log.Printf("[INFO] Index backend: %s, splitter: %s", cfg.Rag.IndexBackend, cfg.Rag.Splitter)

	pipeline := ingest.New(embeddingProvider, builder,
		ingest.WithSplitter(splitter),
		ingest.WithMaxFileBytes(cfg.Rag.MaxFileBytes),
		ingest.WithConcurrency(cfg.Rag.EmbedConcurrency),
	)

	// 5. Services
	chatService := service.NewChatService(llmProvider, sysLogger)
	documentService := service.NewDocumentService(
		pipeline,
		index.NewStore(),
		queryEmbedder,
		publisher,
		sysLogger,
		cfg.Rag.TopK,
	)

	// 6. Controllers
	c.ChatController = controller.NewChatController(chatService, sysLogger)
	c.DocumentController = controller.NewDocumentController(documentService, cfg.Ai.DefaultModel)
	c.ConsumerService = consumerService

	return c, nil
}

// Close releases bus connections and flushes the logger.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
