package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/docchat/docchat/internal/models"
)

// MemoryStore is an in-memory vector store. It keeps everything in a
// map and scores candidates by cosine similarity. Used in dev mode and
// in tests; the pgvector store is the production backend.
type MemoryStore struct {
	mu     sync.RWMutex
	dim    int
	chunks map[string]models.Chunk
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		dim:    dim,
		chunks: make(map[string]models.Chunk),
	}
}

func (s *MemoryStore) EnsureCollection(_ context.Context) error {
	return nil
}

func (s *MemoryStore) Upsert(_ context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		if len(chunk.Embedding) != s.dim {
			return fmt.Errorf("%w: chunk %s has %d dimensions, store expects %d",
				models.ErrStorage, chunk.ID, len(chunk.Embedding), s.dim)
		}
	}
	for _, chunk := range chunks {
		s.chunks[chunk.ID] = chunk
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, embedding []float32, topK int) ([]models.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			models.ErrStorage, len(embedding), s.dim)
	}

	hits := make([]models.SearchHit, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		hits = append(hits, models.SearchHit{
			ID:       chunk.ID,
			Text:     chunk.Text,
			Score:    cosineSimilarity(embedding, chunk.Embedding),
			Metadata: chunk.Metadata,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Len reports the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *MemoryStore) Close() {}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
