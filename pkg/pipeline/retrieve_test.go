package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docchat/docchat/internal/models"
	"github.com/docchat/docchat/pkg/chunker"
	"github.com/docchat/docchat/pkg/pipeline"
	"github.com/docchat/docchat/pkg/store"
)

func TestRetrieve_RecallAfterIngest(t *testing.T) {
	s := store.NewMemoryStore(testDim)
	emb := &hashEmbedder{}
	ing := pipeline.NewIngestor(emb, s, chunker.Config{ChunkSize: 60, Overlap: 10})
	ret := pipeline.NewRetriever(emb, s)
	ctx := context.Background()

	docs := map[string]string{
		"animals.txt": "The quick brown fox jumps over the lazy dog near the river bank every single morning.",
		"cooking.txt": "Simmer the onions slowly in olive oil until translucent, then add garlic and tomatoes.",
		"space.txt":   "Neutron stars pack more mass than the sun into a sphere the size of a small city.",
	}
	ingested := make(map[string]string) // source file -> document id
	for name, text := range docs {
		res, err := ing.Ingest(ctx, text, name)
		require.NoError(t, err)
		ingested[name] = res.DocumentID
	}

	// Querying with a chunk's own text must surface its document first.
	hits, err := ret.Retrieve(ctx, docs["cooking.txt"][:60], 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, ingested["cooking.txt"], hits[0].Metadata.DocumentID)

	// Scores descend.
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestRetrieve_DefaultTopK(t *testing.T) {
	s := store.NewMemoryStore(testDim)
	emb := &hashEmbedder{}
	ing := pipeline.NewIngestor(emb, s, chunker.Config{ChunkSize: 30, Overlap: 5})
	ret := pipeline.NewRetriever(emb, s)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, "many words repeated over and over to produce a good number of chunks for this check", "doc.txt")
	require.NoError(t, err)

	hits, err := ret.Retrieve(ctx, "words", 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hits), pipeline.DefaultTopK)
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	s := store.NewMemoryStore(testDim)
	ret := pipeline.NewRetriever(&hashEmbedder{failOn: 1}, s)

	_, err := ret.Retrieve(context.Background(), "query", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbedding)
}

func hit(id, docID, srcFile string, index int, score float32) models.SearchHit {
	return models.SearchHit{
		ID:    id,
		Text:  "text " + id,
		Score: score,
		Metadata: models.ChunkMetadata{
			DocumentID: docID,
			SourceFile: srcFile,
			ChunkIndex: index,
		},
	}
}

func TestGroupByDocument(t *testing.T) {
	hits := []models.SearchHit{
		hit("a", "doc2", "two.txt", 4, 0.81),
		hit("b", "doc1", "one.txt", 2, 0.90),
		hit("c", "doc2", "two.txt", 1, 0.75),
		hit("d", "doc1", "one.txt", 0, 0.60),
		hit("e", "doc3", "three.txt", 0, 0.85),
	}

	clusters := pipeline.GroupByDocument(hits)
	require.Len(t, clusters, 3)

	// Clusters ordered by their best hit score: doc1 (0.90), doc3
	// (0.85), doc2 (0.81).
	assert.Equal(t, "doc1", clusters[0].DocumentID)
	assert.Equal(t, "doc3", clusters[1].DocumentID)
	assert.Equal(t, "doc2", clusters[2].DocumentID)

	// Chunks within each cluster ascend by position.
	seen := make(map[string]bool)
	for _, cluster := range clusters {
		for i, ch := range cluster.Chunks {
			assert.False(t, seen[ch.ID], "chunk %s appears twice", ch.ID)
			seen[ch.ID] = true
			if i > 0 {
				assert.Greater(t, ch.Metadata.ChunkIndex, cluster.Chunks[i-1].Metadata.ChunkIndex)
			}
		}
	}
	assert.Len(t, seen, len(hits))
}

func TestGroupByDocument_Empty(t *testing.T) {
	assert.Empty(t, pipeline.GroupByDocument(nil))
}
