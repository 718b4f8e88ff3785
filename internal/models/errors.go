package models

import "errors"

// Sentinel errors for the pipeline. Callers wrap these with fmt.Errorf
// and %w so the transport layer can map them to status codes with
// errors.Is.
var (
	// ErrInvalidConfig marks bad chunking parameters, rejected before
	// any work is done.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbedding marks an embedding provider failure. The enclosing
	// ingestion or retrieval is aborted with no partial state persisted.
	ErrEmbedding = errors.New("embedding failure")

	// ErrStorage marks a vector store failure, same abort policy.
	ErrStorage = errors.New("storage failure")

	// ErrDecode marks uploaded content that is not valid text.
	ErrDecode = errors.New("decode failure")
)
