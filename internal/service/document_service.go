package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"ai-chat-relay-be/internal/dto"
	"ai-chat-relay-be/internal/pkg/logger"
	"ai-chat-relay-be/pkg/embedding"
	"ai-chat-relay-be/pkg/events"
	"ai-chat-relay-be/pkg/rag/index"
	"ai-chat-relay-be/pkg/rag/ingest"
	"ai-chat-relay-be/pkg/rag/retrieval"

	"github.com/google/uuid"
)

const documentModule = "DOCUMENTS"

// IDocumentService owns the process-wide retrieval index.
type IDocumentService interface {
	// Ingest replaces the current index with one built from files. A failed
	// batch clears the index, since the previous documents are no longer the
	// uploaded set.
	Ingest(ctx context.Context, files []ingest.File) (*dto.IngestDocumentsResponse, error)
	BuildContext(ctx context.Context, req *dto.BuildContextRequest) (*dto.BuildContextResponse, error)
	IndexedWindows() int
}

type documentService struct {
	pipeline      *ingest.Pipeline
	store         *index.Store
	queryEmbedder embedding.EmbeddingProvider
	publisher     events.Publisher
	logger        logger.ILogger
	topK          int

	// ingestion is exclusive; queries read the store without locking
	mu sync.Mutex
}

func NewDocumentService(
	pipeline *ingest.Pipeline,
	store *index.Store,
	queryEmbedder embedding.EmbeddingProvider,
	publisher events.Publisher,
	logger logger.ILogger,
	topK int,
) IDocumentService {
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	return &documentService{
		pipeline:      pipeline,
		store:         store,
		queryEmbedder: queryEmbedder,
		publisher:     publisher,
		logger:        logger,
		topK:          topK,
	}
}

func (s *documentService) Ingest(ctx context.Context, files []ingest.File) (*dto.IngestDocumentsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batchId := uuid.NewString()
	start := time.Now()

	res, err := s.pipeline.Ingest(ctx, files)
	if err != nil {
		s.replace(ctx, nil)
		s.logger.Error(documentModule, "Ingestion aborted", map[string]interface{}{
			"batch_id": batchId,
			"files":    len(files),
			"error":    err.Error(),
		})
		return nil, err
	}

	for _, rep := range res.Reports {
		if rep.Error != nil {
			s.logger.Warn(documentModule, "File skipped", map[string]interface{}{
				"batch_id": batchId,
				"file":     rep.File,
				"kind":     string(rep.Error.Kind),
				"error":    rep.Error.Err.Error(),
			})
		}
	}

	s.replace(ctx, res.Index)

	s.logger.Info(documentModule, "Ingestion completed", map[string]interface{}{
		"batch_id":    batchId,
		"files":       len(files),
		"loaded":      res.Loaded(),
		"windows":     res.Windows,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if s.publisher != nil {
		evt := events.NewIngestionCompleted(batchId, res.Loaded(), res.Windows, res.Reports)
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Warn(documentModule, "Failed to publish ingestion event", map[string]interface{}{
				"batch_id": batchId,
				"error":    err.Error(),
			})
		}
	}

	return &dto.IngestDocumentsResponse{
		BatchId: batchId,
		Loaded:  res.Loaded(),
		Windows: res.Windows,
		Indexed: res.Index != nil,
		Files:   res.Reports,
	}, nil
}

// replace swaps next in and releases whatever the old index held.
func (s *documentService) replace(ctx context.Context, next index.Searcher) {
	old := s.store.Swap(next)
	if d, ok := old.(index.Discarder); ok {
		if err := d.Discard(ctx); err != nil {
			s.logger.Warn(documentModule, "Failed to discard replaced index", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (s *documentService) BuildContext(ctx context.Context, req *dto.BuildContextRequest) (*dto.BuildContextResponse, error) {
	k := req.K
	if k <= 0 {
		k = s.topK
	}

	text, err := retrieval.BuildContext(ctx, req.Query, s.store.Current(), s.queryEmbedder, k)
	if err != nil {
		var connErr *embedding.ConnectivityError
		if errors.As(err, &connErr) {
			s.logger.Error(documentModule, "Embedding backend unreachable", map[string]interface{}{"error": err.Error()})
		}
		return nil, err
	}

	return &dto.BuildContextResponse{
		Context: text,
		Prompt:  retrieval.AugmentPrompt(text, req.Query),
	}, nil
}

func (s *documentService) IndexedWindows() int {
	if cur := s.store.Current(); cur != nil {
		return cur.Len()
	}
	return 0
}
