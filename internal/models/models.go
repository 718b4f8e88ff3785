package models

import "time"

// ChunkMetadata carries the positional information persisted alongside
// each chunk and returned with every search hit.
type ChunkMetadata struct {
	DocumentID string `json:"document_id"`
	SourceFile string `json:"source_file"`
	ChunkIndex int    `json:"chunk_index"`
}

// Chunk is a contiguous slice of a document's text. The embedding is
// populated by the ingestion pipeline before the chunk is persisted.
type Chunk struct {
	ID        string
	Text      string
	Metadata  ChunkMetadata
	Embedding []float32
}

// SearchHit is a single vector store query result.
type SearchHit struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Score    float32       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

// DocumentCluster groups the hits belonging to one source document,
// with chunks ordered by their position in the document.
type DocumentCluster struct {
	DocumentID string      `json:"document_id"`
	SourceFile string      `json:"source_file"`
	Chunks     []SearchHit `json:"chunks"`
}

// IngestResult reports a completed ingestion.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	NumChunks  int    `json:"num_chunks"`
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one turn in a conversation. Messages are immutable
// once appended to a session.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatMessage stamps a message with the current time.
func NewChatMessage(role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content, Timestamp: time.Now()}
}
