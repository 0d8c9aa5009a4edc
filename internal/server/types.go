package server

import (
	"ragkit/internal/schema"
	"ragkit/internal/vectorstore"
)

// EmbeddingsRequest represents the request body for embedding texts
type EmbeddingsRequest struct {
	Texts []string `json:"texts"`
	// Type is "text" (default) or "query" and selects the prefix applied.
	Type string `json:"type,omitempty"`
}

// EmbeddingsResponse holds one vector per input text, in input order
type EmbeddingsResponse struct {
	Model      string      `json:"model"`
	Dimension  int         `json:"dimension"`
	Embeddings [][]float32 `json:"embeddings"`
}

// DocumentInput is a document supplied inline
type DocumentInput struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text" binding:"required"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IngestRequest represents the request body for ingesting documents
type IngestRequest struct {
	Documents []DocumentInput `json:"documents" binding:"required,min=1,dive"`
}

// RetrieveRequest represents the request body for retrieval and query
type RetrieveRequest struct {
	Query          string                       `json:"query"`
	SimilarityTopK int                          `json:"similarity_top_k,omitempty"`
	Mode           vectorstore.QueryMode        `json:"mode,omitempty"`
	Filters        *vectorstore.MetadataFilters `json:"filters,omitempty"`
}

// RetrieveResponse lists retrieved nodes, best first
type RetrieveResponse struct {
	Nodes []schema.NodeWithScore `json:"nodes"`
}

// ErrorResponse is returned with every non 2xx status
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
