package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docchat/docchat/internal/models"
	"github.com/docchat/docchat/pkg/pipeline"
	"github.com/docchat/docchat/pkg/store"
)

type stubIngestor struct {
	result *models.IngestResult
	err    error
	gotSrc string
}

func (s *stubIngestor) Ingest(_ context.Context, _ string, sourceFile string) (*models.IngestResult, error) {
	s.gotSrc = sourceFile
	return s.result, s.err
}

type stubExtractor struct{ err error }

func (s stubExtractor) Extract(data []byte, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return string(data), nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 4)
	for i := 0; i < len(text); i++ {
		vec[i%4] += float32(text[i])
	}
	return vec, nil
}

func (stubEmbedder) Dimension() int { return 4 }

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleUpload_Success(t *testing.T) {
	ing := &stubIngestor{result: &models.IngestResult{DocumentID: "doc-1", NumChunks: 3}}
	srv := New(nil, ing, nil, stubExtractor{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, uploadRequest(t, "notes.txt", "some text"))

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Equal(t, 3, result.NumChunks)
	assert.Equal(t, "notes.txt", ing.gotSrc)
}

func TestHandleUpload_DecodeFailure(t *testing.T) {
	srv := New(nil, &stubIngestor{}, nil, stubExtractor{err: fmt.Errorf("%w: not text", models.ErrDecode)})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, uploadRequest(t, "bad.bin", "\xff\xfe"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "decode failure")
}

func TestHandleUpload_StorageFailure(t *testing.T) {
	ing := &stubIngestor{err: fmt.Errorf("storing: %w", models.ErrStorage)}
	srv := New(nil, ing, nil, stubExtractor{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, uploadRequest(t, "notes.txt", "some text"))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleUpload_MethodNotAllowed(t *testing.T) {
	srv := New(nil, &stubIngestor{}, nil, stubExtractor{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/upload", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleSearch(t *testing.T) {
	mem := store.NewMemoryStore(4)
	emb := stubEmbedder{}
	retriever := pipeline.NewRetriever(emb, mem)

	vec, _ := emb.Embed(context.Background(), "hello world")
	require.NoError(t, mem.Upsert(context.Background(), []models.Chunk{{
		ID:        "c1",
		Text:      "hello world",
		Embedding: vec,
		Metadata:  models.ChunkMetadata{DocumentID: "d1", SourceFile: "a.txt"},
	}}))

	srv := New(nil, &stubIngestor{}, retriever, stubExtractor{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=hello+world&k=3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Results []models.SearchHit `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c1", resp.Results[0].ID)
}

func TestHandleSearch_Grouped(t *testing.T) {
	mem := store.NewMemoryStore(4)
	emb := stubEmbedder{}
	retriever := pipeline.NewRetriever(emb, mem)
	ctx := context.Background()

	for i, text := range []string{"alpha beta", "gamma delta"} {
		vec, _ := emb.Embed(ctx, text)
		require.NoError(t, mem.Upsert(ctx, []models.Chunk{{
			ID:        fmt.Sprintf("c%d", i),
			Text:      text,
			Embedding: vec,
			Metadata:  models.ChunkMetadata{DocumentID: "d1", SourceFile: "a.txt", ChunkIndex: i},
		}}))
	}

	srv := New(nil, &stubIngestor{}, retriever, stubExtractor{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=alpha&grouped=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Documents []models.DocumentCluster `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 1)
	assert.Len(t, resp.Documents[0].Chunks, 2)
	assert.Equal(t, 0, resp.Documents[0].Chunks[0].Metadata.ChunkIndex)
	assert.Equal(t, 1, resp.Documents[0].Chunks[1].Metadata.ChunkIndex)
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	srv := New(nil, &stubIngestor{}, nil, stubExtractor{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatStream_MissingParams(t *testing.T) {
	srv := New(nil, &stubIngestor{}, nil, stubExtractor{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/stream?question=hi", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := New(nil, &stubIngestor{}, nil, stubExtractor{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
