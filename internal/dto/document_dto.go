package dto

import "ai-chat-relay-be/pkg/rag/ingest"

type IngestDocumentsResponse struct {
	BatchId string              `json:"batch_id"`
	Loaded  int                 `json:"loaded"`
	Windows int                 `json:"windows"`
	Indexed bool                `json:"indexed"`
	Files   []ingest.FileReport `json:"files"`
}

type BuildContextRequest struct {
	Query string `json:"query" validate:"required"`
	K     int    `json:"k" validate:"omitempty,min=1,max=50"`
}

type BuildContextResponse struct {
	Context string `json:"context"`
	Prompt  string `json:"prompt"`
}

type HealthResponse struct {
	Status         string `json:"status"`
	IndexedWindows int    `json:"indexed_windows"`
	DefaultModel   string `json:"default_model"`
}
