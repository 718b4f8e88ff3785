package chunker

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/docchat/docchat/internal/models"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// Config controls how documents are split.
type Config struct {
	ChunkSize int
	Overlap   int
}

func (c Config) withDefaults() Config {
	// Defaults apply only to a zero Config, so a caller that sets
	// ChunkSize can still request zero overlap.
	if c == (Config{}) {
		return Config{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap}
	}
	return c
}

func (c Config) validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidConfig, c.ChunkSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must be non-negative, got %d", models.ErrInvalidConfig, c.Overlap)
	}
	if c.Overlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be less than chunk size %d", models.ErrInvalidConfig, c.Overlap, c.ChunkSize)
	}
	return nil
}

// Split slices text into overlapping chunks using a sliding window.
// The window is measured in runes, never cutting a multi-byte
// character in half. Window i covers [start, start+ChunkSize) clipped
// to the text length, and consecutive windows advance by
// ChunkSize-Overlap, so every rune is covered and adjacent chunks
// share exactly Overlap runes (the last chunk may be shorter). Empty
// text yields no chunks and no error.
func Split(text, documentID, sourceFile string, cfg Config) ([]models.Chunk, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	var chunks []models.Chunk
	stride := cfg.ChunkSize - cfg.Overlap

	for start, index := 0, 0; start < len(runes); start, index = start+stride, index+1 {
		end := start + cfg.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, models.Chunk{
			ID:   uuid.NewString(),
			Text: string(runes[start:end]),
			Metadata: models.ChunkMetadata{
				DocumentID: documentID,
				SourceFile: sourceFile,
				ChunkIndex: index,
			},
		})
	}

	return chunks, nil
}
