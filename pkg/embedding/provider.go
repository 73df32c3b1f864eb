package embedding

import (
	"context"
	"fmt"
)

type EmbeddingResponseEmbedding struct {
	Values []float32 `json:"values"`
}

type EmbeddingResponse struct {
	Embedding EmbeddingResponseEmbedding `json:"embedding"`
}

// EmbeddingProvider defines the interface for generating text embeddings
type EmbeddingProvider interface {
	Generate(ctx context.Context, text string) (*EmbeddingResponse, error)
}

// ConnectivityError means the embedding backend could not be reached at all,
// as opposed to rejecting a particular input.
type ConnectivityError struct {
	Endpoint string
	Cause    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("embedding backend unreachable at %s: %v", e.Endpoint, e.Cause)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Cause
}
