package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/docchat/docchat/internal/models"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// VectorStore persists embedded chunks in Postgres with the pgvector
// extension, using cosine distance for similarity search.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to database: %v", models.ErrStorage, err)
	}

	return &VectorStore{
		config: config,
		pool:   pool,
	}, nil
}

// EnsureCollection creates the pgvector extension, the chunk table and
// its index if they do not already exist. Safe to call repeatedly.
func (vs *VectorStore) EnsureCollection(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("%w: failed to create vector extension: %v", models.ErrStorage, err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			source_file TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err = vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("%w: failed to create table: %v", models.ErrStorage, err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	if _, err = vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("%w: failed to create index: %v", models.ErrStorage, err)
	}

	return nil
}

// Upsert writes the embedded chunk batch in one transaction. Either the
// whole batch lands or nothing does.
func (vs *VectorStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", models.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, source_file, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	for _, chunk := range chunks {
		if len(chunk.Embedding) != vs.config.VectorDim {
			return fmt.Errorf("%w: chunk %s has %d dimensions, table expects %d",
				models.ErrStorage, chunk.ID, len(chunk.Embedding), vs.config.VectorDim)
		}

		_, err = tx.Exec(ctx, stmt,
			chunk.ID,
			chunk.Metadata.DocumentID,
			chunk.Metadata.SourceFile,
			chunk.Metadata.ChunkIndex,
			sanitizeUTF8(chunk.Text),
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return fmt.Errorf("%w: failed to insert chunk: %v", models.ErrStorage, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", models.ErrStorage, err)
	}

	return nil
}

// Query returns the topK nearest chunks by cosine similarity, best
// match first. Score is 1 - cosine distance.
func (vs *VectorStore) Query(ctx context.Context, embedding []float32, topK int) ([]models.SearchHit, error) {
	query := fmt.Sprintf(`
		SELECT id, content, document_id, source_file, chunk_index,
		       1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query chunks: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var hit models.SearchHit
		err := rows.Scan(
			&hit.ID,
			&hit.Text,
			&hit.Metadata.DocumentID,
			&hit.Metadata.SourceFile,
			&hit.Metadata.ChunkIndex,
			&hit.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan row: %v", models.ErrStorage, err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}

	return hits, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
