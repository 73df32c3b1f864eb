package index

import (
	"context"
	"fmt"

	"ai-chat-relay-be/internal/model"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PgvectorBuilder persists each build as a new generation of rows in
// document_windows. Searches only ever see their own generation.
type PgvectorBuilder struct {
	db *gorm.DB
}

func NewPgvectorBuilder(db *gorm.DB) *PgvectorBuilder {
	return &PgvectorBuilder{db: db}
}

func (b *PgvectorBuilder) Build(ctx context.Context, windows []DocumentWindow) (Searcher, error) {
	generation := uuid.New()

	rows := make([]model.DocumentWindow, len(windows))
	for i, w := range windows {
		rows[i] = model.DocumentWindow{
			Generation:     generation,
			Position:       i,
			Source:         w.Source,
			Segment:        w.Segment,
			SourceOffset:   w.Offset,
			Document:       w.Text,
			EmbeddingValue: pgvector.NewVector(w.Embedding),
			Metadata: datatypes.JSONMap{
				"source":  w.Source,
				"segment": w.Segment,
				"offset":  w.Offset,
			},
		}
	}

	if len(rows) > 0 {
		err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(rows, 200).Error
		})
		if err != nil {
			return nil, fmt.Errorf("store windows: %w", err)
		}
	}

	return &PgvectorIndex{db: b.db, generation: generation, count: len(rows)}, nil
}

type PgvectorIndex struct {
	db         *gorm.DB
	generation uuid.UUID
	count      int
}

var (
	_ Searcher  = (*PgvectorIndex)(nil)
	_ Discarder = (*PgvectorIndex)(nil)
)

func (p *PgvectorIndex) Len() int {
	return p.count
}

func (p *PgvectorIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 || p.count == 0 {
		return nil, nil
	}

	type scoredWindow struct {
		model.DocumentWindow
		Similarity float64
	}

	vec := pgvector.NewVector(query)
	var results []scoredWindow
	err := p.db.WithContext(ctx).
		Model(&model.DocumentWindow{}).
		Select("*, 1 - (embedding_value <=> ?) as similarity", vec).
		Where("generation = ?", p.generation).
		Order(gorm.Expr("embedding_value <=> ?", vec)).
		Order("position").
		Limit(k).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("search windows: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			Window: DocumentWindow{
				Text:      r.Document,
				Source:    r.Source,
				Segment:   r.Segment,
				Offset:    r.SourceOffset,
				Embedding: r.EmbeddingValue.Slice(),
			},
			Score: float32(r.Similarity),
		}
	}
	return hits, nil
}

// Discard deletes this generation's rows.
func (p *PgvectorIndex) Discard(ctx context.Context) error {
	return p.db.WithContext(ctx).
		Where("generation = ?", p.generation).
		Delete(&model.DocumentWindow{}).Error
}
