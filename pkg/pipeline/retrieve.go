package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/docchat/docchat/internal/models"
	"github.com/docchat/docchat/internal/types"
)

const DefaultTopK = 5

// Retriever answers similarity queries against the vector store.
type Retriever struct {
	embedder types.Embedder
	store    types.VectorStore
}

func NewRetriever(embedder types.Embedder, store types.VectorStore) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
	}
}

// Retrieve embeds the query and returns the topK nearest chunks in the
// store's descending-score order, verbatim.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]models.SearchHit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := r.store.Query(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	return hits, nil
}

// RetrieveGrouped retrieves as above, then regroups the hits into
// per-document clusters so callers get locally coherent passages
// instead of isolated fragments. Within a cluster chunks are ordered by
// their position in the document; clusters are ordered by their best
// hit's score.
func (r *Retriever) RetrieveGrouped(ctx context.Context, query string, topK int) ([]models.DocumentCluster, error) {
	hits, err := r.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return GroupByDocument(hits), nil
}

// GroupByDocument clusters hits by document id.
func GroupByDocument(hits []models.SearchHit) []models.DocumentCluster {
	byDoc := make(map[string]*models.DocumentCluster)
	best := make(map[string]float32)
	var order []string

	for _, hit := range hits {
		docID := hit.Metadata.DocumentID
		cluster, ok := byDoc[docID]
		if !ok {
			cluster = &models.DocumentCluster{
				DocumentID: docID,
				SourceFile: hit.Metadata.SourceFile,
			}
			byDoc[docID] = cluster
			best[docID] = hit.Score
			order = append(order, docID)
		}
		if hit.Score > best[docID] {
			best[docID] = hit.Score
		}
		cluster.Chunks = append(cluster.Chunks, hit)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return best[order[i]] > best[order[j]]
	})

	clusters := make([]models.DocumentCluster, 0, len(order))
	for _, docID := range order {
		cluster := byDoc[docID]
		sort.SliceStable(cluster.Chunks, func(i, j int) bool {
			return cluster.Chunks[i].Metadata.ChunkIndex < cluster.Chunks[j].Metadata.ChunkIndex
		})
		clusters = append(clusters, *cluster)
	}

	return clusters
}
