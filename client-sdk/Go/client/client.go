package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ragkit Go SDK
//
// This module provides a thin, high-level wrapper around the ragkit HTTP API so that
// users can embed texts, ingest documents and query them from Go code.
//
// All methods return *RagkitError when the server returns a non-successful status code.
//
// Example usage:
//  client := NewRagkitClient("http://localhost:8080")
//  ok, err := client.HealthCheck(ctx)
//  ...

// RagkitClient is a high-level HTTP client for a ragkit server.
type RagkitClient struct {
	BaseURL string
	Client  *http.Client
}

// RagkitError represents an error returned by the ragkit server.
type RagkitError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *RagkitError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("RagkitError: %d %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("RagkitError: %d %s", e.StatusCode, e.Message)
}

// NewRagkitClient creates a new ragkit client.
func NewRagkitClient(baseURL string) *RagkitClient {
	return &RagkitClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Document is a document to ingest.
type Document struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Filter restricts retrieval to nodes whose metadata matches.
// Operator is one of ==, !=, >, <, >=, <=, in, nin.
type Filter struct {
	Key      string `json:"key"`
	Value    any    `json:"value"`
	Operator string `json:"operator,omitempty"`
}

// Filters combines Filter values with "and" (default) or "or".
type Filters struct {
	Filters   []Filter `json:"filters"`
	Condition string   `json:"condition,omitempty"`
}

// RetrieveOptions tune Retrieve and Query.
type RetrieveOptions struct {
	SimilarityTopK int      `json:"similarity_top_k,omitempty"`
	Mode           string   `json:"mode,omitempty"`
	Filters        *Filters `json:"filters,omitempty"`
}

// Node is a retrieved chunk.
type Node struct {
	ID       string         `json:"id"`
	DocID    string         `json:"doc_id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type NodeWithScore struct {
	Node  Node    `json:"node"`
	Score float64 `json:"score"`
}

// IngestResult summarizes an ingestion.
type IngestResult struct {
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	NodeIDs  []string `json:"node_ids"`
}

// QueryResult is a synthesized answer with its sources.
type QueryResult struct {
	Answer      string          `json:"answer"`
	SourceNodes []NodeWithScore `json:"source_nodes"`
}

// ----------------- Low-level request helper -----------------
// request sends an HTTP request and decodes the response body into out.
func (c *RagkitClient) request(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &RagkitError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var parsed struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != "" {
			apiErr.Message, apiErr.Kind = parsed.Error, parsed.Kind
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// ----------------- API Methods -----------------

// HealthCheck checks if the server is healthy. Returns true if healthy.
func (c *RagkitClient) HealthCheck(ctx context.Context) (bool, error) {
	var result map[string]any
	if err := c.request(ctx, http.MethodGet, "/", nil, &result); err != nil {
		return false, err
	}
	return result["status"] == "ok", nil
}

// Embed returns one embedding per text, in input order.
func (c *RagkitClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts must not be empty")
	}
	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.request(ctx, http.MethodPost, "/v1/embeddings", map[string]any{"texts": texts}, &result); err != nil {
		return nil, err
	}
	return result.Embeddings, nil
}

// IngestDocuments chunks, embeds and stores documents.
func (c *RagkitClient) IngestDocuments(ctx context.Context, docs []Document) (*IngestResult, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("documents must not be empty")
	}
	var result IngestResult
	if err := c.request(ctx, http.MethodPost, "/v1/documents", map[string]any{"documents": docs}, &result); err != nil {
		return nil, fmt.Errorf("ingest documents failed: %w", err)
	}
	return &result, nil
}

// DeleteDocument removes every chunk of a document.
func (c *RagkitClient) DeleteDocument(ctx context.Context, docID string) error {
	if docID == "" {
		return fmt.Errorf("docID must not be empty")
	}
	return c.request(ctx, http.MethodDelete, "/v1/documents/"+url.PathEscape(docID), nil, nil)
}

// Retrieve returns the nodes closest to query.
func (c *RagkitClient) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]NodeWithScore, error) {
	var result struct {
		Nodes []NodeWithScore `json:"nodes"`
	}
	if err := c.request(ctx, http.MethodPost, "/v1/retrieve", retrievePayload(query, opts), &result); err != nil {
		return nil, err
	}
	return result.Nodes, nil
}

// Query retrieves context for query and asks the server's LLM to answer.
func (c *RagkitClient) Query(ctx context.Context, query string, opts RetrieveOptions) (*QueryResult, error) {
	var result QueryResult
	if err := c.request(ctx, http.MethodPost, "/v1/query", retrievePayload(query, opts), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func retrievePayload(query string, opts RetrieveOptions) map[string]any {
	payload := map[string]any{"query": query}
	if opts.SimilarityTopK > 0 {
		payload["similarity_top_k"] = opts.SimilarityTopK
	}
	if opts.Mode != "" {
		payload["mode"] = opts.Mode
	}
	if opts.Filters != nil {
		payload["filters"] = opts.Filters
	}
	return payload
}
