package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/docchat/docchat/internal/models"
	"github.com/docchat/docchat/internal/types"
	"github.com/docchat/docchat/pkg/chunker"
)

// Ingestor runs the document-to-vector pipeline: split, embed, persist.
type Ingestor struct {
	embedder types.Embedder
	store    types.VectorStore
	chunking chunker.Config

	// OnChunk, when set, is called after each chunk is embedded.
	// The CLI uses it to drive a progress bar.
	OnChunk func(done, total int)
}

func NewIngestor(embedder types.Embedder, store types.VectorStore, chunking chunker.Config) *Ingestor {
	return &Ingestor{
		embedder: embedder,
		store:    store,
		chunking: chunking,
	}
}

// Ingest splits text into chunks, embeds every chunk and writes the
// whole batch in one upsert. Any embedding failure aborts the ingestion
// before anything is persisted, so a document is either fully ingested
// or not at all.
func (in *Ingestor) Ingest(ctx context.Context, text, sourceFile string) (*models.IngestResult, error) {
	documentID := uuid.NewString()

	chunks, err := chunker.Split(text, documentID, sourceFile, in.chunking)
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		embedding, err := in.embedder.Embed(ctx, chunks[i].Text)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d of %s: %w", i, sourceFile, err)
		}
		chunks[i].Embedding = embedding

		if in.OnChunk != nil {
			in.OnChunk(i+1, len(chunks))
		}
	}

	if len(chunks) > 0 {
		if err := in.store.Upsert(ctx, chunks); err != nil {
			return nil, fmt.Errorf("storing %s: %w", sourceFile, err)
		}
	}

	return &models.IngestResult{
		DocumentID: documentID,
		NumChunks:  len(chunks),
	}, nil
}
