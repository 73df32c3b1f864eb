package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"ai-chat-relay-be/pkg/embedding"
)

type ErrorKind string

const (
	KindTooLarge        ErrorKind = "too_large"
	KindUnsupportedType ErrorKind = "unsupported_type"
	KindLoadFailed      ErrorKind = "load_failed"
)

// IngestionError describes why one file was skipped.
type IngestionError struct {
	File string
	Kind ErrorKind
	Err  error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.File, e.Kind, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

func (e *IngestionError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"kind":    string(e.Kind),
		"message": e.Err.Error(),
	})
}

// EmbeddingConnectivityError aborts a batch: no index is produced.
type EmbeddingConnectivityError struct {
	Cause error
}

func (e *EmbeddingConnectivityError) Error() string {
	return fmt.Sprintf("embedding failed, ingestion aborted: %v", e.Cause)
}

func (e *EmbeddingConnectivityError) Unwrap() error {
	return e.Cause
}

// Unreachable reports whether the backend could not be contacted at all, as
// opposed to answering with an error.
func (e *EmbeddingConnectivityError) Unreachable() bool {
	var connErr *embedding.ConnectivityError
	return errors.As(e.Cause, &connErr)
}
