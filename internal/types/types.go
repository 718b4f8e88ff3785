package types

import (
	"context"

	"github.com/docchat/docchat/internal/models"
)

// Core interfaces

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VectorStore persists embedded chunks and answers nearest-neighbor
// queries. Query results are ordered by descending similarity score.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, chunks []models.Chunk) error
	Query(ctx context.Context, embedding []float32, topK int) ([]models.SearchHit, error)
	Close()
}

// Extractor turns an uploaded file into plain text.
type Extractor interface {
	Extract(data []byte, filename string) (string, error)
}

// Ingestor accepts raw document text and persists it as embedded chunks.
type Ingestor interface {
	Ingest(ctx context.Context, text, sourceFile string) (*models.IngestResult, error)
}

// Searcher is the retrieval entry point the answering agent calls.
type Searcher interface {
	Retrieve(ctx context.Context, query string, topK int) ([]models.SearchHit, error)
}
