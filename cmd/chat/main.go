package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"ai-chat-relay-be/internal/config"
	"ai-chat-relay-be/internal/pkg/logger"
	"ai-chat-relay-be/internal/pkg/serverutils"
	"ai-chat-relay-be/pkg/conversation"
	"ai-chat-relay-be/pkg/embedding"
	"ai-chat-relay-be/pkg/rag/chunk"
	"ai-chat-relay-be/pkg/rag/index"
	"ai-chat-relay-be/pkg/rag/ingest"
	"ai-chat-relay-be/pkg/rag/loader"
	"ai-chat-relay-be/pkg/relayclient"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config

	backendURL string
	modelName  string
	embedModel string
	streaming  bool
	docPaths   []string

	rootCmd = &cobra.Command{
		Use:   "chat",
		Short: "Chat with a local model through the relay",
		Long: `Starts an interactive chat session against a running relay.
Documents passed with --doc are indexed locally and used to answer questions.`,
		RunE:         runChat,
		SilenceUsage: true,
	}
	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "List the models the relay can serve",
		RunE:  runModels,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "Relay base URL (defaults to BACKEND_URL)")
	rootCmd.Flags().StringVarP(&modelName, "model", "m", "", "Chat model (defaults to DEFAULT_MODEL when available)")
	rootCmd.Flags().StringVar(&embedModel, "embed-model", "", "Embedding model for --doc (defaults to DEFAULT_EMBED_MODEL when available)")
	rootCmd.Flags().BoolVar(&streaming, "stream", true, "Stream replies as they are generated")
	rootCmd.Flags().StringSliceVarP(&docPaths, "doc", "d", nil, "PDF, TXT, CSV or DOCX file to answer from (repeatable)")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if backendURL == "" {
			backendURL = cfg.App.BaseURL
		}
	}
	rootCmd.AddCommand(modelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runModels(cmd *cobra.Command, args []string) error {
	client := relayclient.New(backendURL)
	models, err := client.ListModels(cmd.Context())
	if err != nil {
		return err
	}
	for _, m := range models {
		if size, ok := m["size"].(float64); ok {
			fmt.Printf("%-40s %8.1f MB\n", m.Name(), size/(1<<20))
			continue
		}
		fmt.Println(m.Name())
	}
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Logs go to a file only, the terminal belongs to the conversation.
	appLogger := logger.NewIsolatedLogger(filepath.Join(filepath.Dir(cfg.App.LogFilePath), "chat.log"))
	defer appLogger.Sync()

	relay := conversation.ClientRelay{Client: relayclient.New(backendURL)}

	models, err := relay.ListModels(ctx)
	if err != nil {
		color.Red("Could not reach the relay at %s: %v", backendURL, err)
		return err
	}
	conv := &conversation.Conversation{
		Model:      modelName,
		EmbedModel: embedModel,
	}
	if conv.Model == "" {
		conv.Model = conversation.SelectModel(models, cfg.Ai.DefaultModel, cfg.Ai.DefaultModel)
	}
	if conv.EmbedModel == "" {
		conv.EmbedModel = conversation.SelectModel(models, cfg.Ai.DefaultEmbedModel, cfg.Ai.DefaultEmbedModel)
	}

	splitter, err := chunk.New(cfg.Rag.Splitter, cfg.Rag.ChunkSize, cfg.Rag.ChunkOverlap)
	if err != nil {
		return err
	}
	embedder := embedding.NewOllamaProvider(cfg.Ai.OllamaHost, conv.EmbedModel)
	pipeline := ingest.New(embedder, index.MemoryBuilder{},
		ingest.WithSplitter(splitter),
		ingest.WithMaxFileBytes(cfg.Rag.MaxFileBytes),
		ingest.WithConcurrency(cfg.Rag.EmbedConcurrency),
	)
	controller := conversation.NewController(relay, pipeline,
		embedding.NewCachedProvider(embedder, cfg.Rag.QueryCacheTTL), cfg.Rag.TopK, appLogger)

	color.Cyan("Chat model: %s | Embed model: %s | Streaming: %v", conv.Model, conv.EmbedModel, streaming)

	if len(docPaths) > 0 {
		loadDocuments(ctx, controller, docPaths)
	}

	color.Cyan("Type /load <file...> to index documents, /clear to reset, /exit to quit.")
	reader := bufio.NewReader(os.Stdin)
	sink := newTerminalSink(os.Stdout)

	for {
		color.New(color.FgGreen, color.Bold).Print("\n> ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		input := strings.TrimSpace(line)

		switch {
		case input == "/exit" || input == "/quit":
			return nil
		case input == "/clear":
			conv.Messages = nil
			color.Yellow("History cleared.")
		case strings.HasPrefix(input, "/load "):
			loadDocuments(ctx, controller, strings.Fields(strings.TrimPrefix(input, "/load ")))
		case input != "":
			if askErr := controller.Ask(ctx, conv, input, streaming, sink); askErr != nil {
				color.Red("Error generating response: %v", askErr)
			}
		}

		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
	}
}

func loadDocuments(ctx context.Context, controller *conversation.Controller, paths []string) {
	files := make([]ingest.File, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			color.Red("Skipping %s: %v", p, err)
			continue
		}
		files = append(files, ingest.File{
			Name:         filepath.Base(p),
			DeclaredType: loader.TypeForFilename(p),
			Size:         info.Size(),
			Open: func() (io.ReadCloser, error) {
				return os.Open(p)
			},
		})
	}
	if len(files) == 0 {
		return
	}

	color.Yellow("Processing documents...")
	res, err := controller.LoadDocuments(ctx, files)
	if err != nil {
		var connErr *ingest.EmbeddingConnectivityError
		if errors.As(err, &connErr) {
			color.Red("%s", serverutils.OllamaUnavailableMessage)
		} else {
			color.Red("Error processing documents: %v", err)
		}
		color.Yellow("Document index cleared.")
		return
	}

	for _, rep := range res.Reports {
		if rep.OK() {
			color.Green("  %s: %d windows", rep.File, rep.Windows)
		} else {
			color.Red("  %s: %v", rep.File, rep.Error)
		}
	}
	color.Green("Indexed %d windows from %d of %d files.", res.Windows, res.Loaded(), len(files))
}
