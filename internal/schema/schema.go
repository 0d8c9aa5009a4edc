// Package schema holds the document and node types passed between the
// loader, the index and the vector store.
package schema

import (
	"encoding/json"

	"ragkit/internal/cache"
)

// Metadata keys set by the loader and splitter.
const (
	MetaFileName = "file_name"
	MetaFilePath = "file_path"
	MetaFileType = "file_type"
	MetaFileSize = "file_size"
	MetaDocID    = "doc_id"
)

// Document is a unit of source text before chunking.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Hash identifies the document content, metadata included.
func (d Document) Hash() string {
	meta, _ := json.Marshal(d.Metadata)
	return cache.ContentHash(d.Text + "\x00" + string(meta))
}

// Node is an embeddable chunk of a Document.
type Node struct {
	ID        string         `json:"id"`
	DocID     string         `json:"doc_id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// NodeWithScore is a retrieval hit.
type NodeWithScore struct {
	Node  Node    `json:"node"`
	Score float64 `json:"score"`
}
