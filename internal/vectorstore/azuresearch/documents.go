package azuresearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"

	"ragkit/internal/schema"
	"ragkit/internal/vectorstore"
	ragerrors "ragkit/pkg/errors"
)

type indexBatch struct {
	Value []map[string]any `json:"value"`
}

type indexResult struct {
	Key          string `json:"key"`
	Status       bool   `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	StatusCode   int    `json:"statusCode"`
}

type indexResponse struct {
	Value []indexResult `json:"value"`
}

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
}

type searchRequest struct {
	Search                string        `json:"search,omitempty"`
	Top                   int           `json:"top"`
	Skip                  int           `json:"skip,omitempty"`
	Select                string        `json:"select,omitempty"`
	Filter                string        `json:"filter,omitempty"`
	VectorQueries         []vectorQuery `json:"vectorQueries,omitempty"`
	QueryType             string        `json:"queryType,omitempty"`
	SemanticConfiguration string        `json:"semanticConfiguration,omitempty"`
}

type searchResponse struct {
	Value []map[string]any `json:"value"`
}

// Add uploads nodes with mergeOrUpload actions.
func (s *Store) Add(ctx context.Context, nodes []schema.Node) (ids []string, err error) {
	ctx, end := s.begin(ctx, "add")
	defer func() { end(err) }()

	ids = make([]string, len(nodes))
	docs := make([]map[string]any, len(nodes))
	for i, node := range nodes {
		if node.ID == "" {
			return nil, ragerrors.Validation("node.id", "required")
		}
		if len(node.Embedding) != s.opts.EmbeddingDimensionality {
			return nil, fmt.Errorf("%w: node %s has %d dimensions, index expects %d",
				ragerrors.ErrInvalidDimension, node.ID, len(node.Embedding), s.opts.EmbeddingDimensionality)
		}
		doc, err := s.toDocument(node)
		if err != nil {
			return nil, err
		}
		doc["@search.action"] = "mergeOrUpload"
		docs[i] = doc
		ids[i] = node.ID
	}

	for lo := 0; lo < len(docs); lo += uploadBatchSize {
		hi := min(lo+uploadBatchSize, len(docs))
		if err := s.indexDocuments(ctx, docs[lo:hi]); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Delete removes every node whose doc_id field equals docID.
func (s *Store) Delete(ctx context.Context, docID string) (err error) {
	ctx, end := s.begin(ctx, "delete")
	defer func() { end(err) }()

	keys, err := s.lookupKeys(ctx, fmt.Sprintf("%s eq '%s'", s.opts.DocIDFieldKey, escape(docID)))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	for lo := 0; lo < len(keys); lo += uploadBatchSize {
		hi := min(lo+uploadBatchSize, len(keys))
		actions := make([]map[string]any, 0, hi-lo)
		for _, key := range keys[lo:hi] {
			actions = append(actions, map[string]any{"@search.action": "delete", s.opts.IDFieldKey: key})
		}
		if err := s.indexDocuments(ctx, actions); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) lookupKeys(ctx context.Context, filter string) ([]string, error) {
	var keys []string
	for skip := 0; ; skip += lookupPageSize {
		res, err := s.search(ctx, searchRequest{
			Top:    lookupPageSize,
			Skip:   skip,
			Select: s.opts.IDFieldKey,
			Filter: filter,
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range res.Value {
			if key, ok := doc[s.opts.IDFieldKey].(string); ok {
				keys = append(keys, key)
			}
		}
		if len(res.Value) < lookupPageSize {
			return keys, nil
		}
	}
}

func (s *Store) indexDocuments(ctx context.Context, docs []map[string]any) error {
	resp, err := s.do(ctx, http.MethodPost, s.docsPath("index"), indexBatch{Value: docs})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case runtime.HasStatusCode(resp, http.StatusOK):
		return nil
	case runtime.HasStatusCode(resp, http.StatusMultiStatus):
		var result indexResponse
		if err := runtime.UnmarshalAsJSON(resp, &result); err != nil {
			return &ragerrors.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Message: "decode index response", Err: err}
		}
		var failed []string
		for _, r := range result.Value {
			if !r.Status {
				failed = append(failed, fmt.Sprintf("%s (%d: %s)", r.Key, r.StatusCode, r.ErrorMessage))
			}
		}
		if len(failed) == 0 {
			return nil
		}
		return &ragerrors.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%d of %d documents failed: %s", len(failed), len(docs), strings.Join(failed, "; ")),
		}
	default:
		return responseError(resp)
	}
}

// Query runs q in the requested mode. Scores are reranker scores in
// semantic_hybrid mode and search scores otherwise.
func (s *Store) Query(ctx context.Context, q vectorstore.Query) (res *vectorstore.QueryResult, err error) {
	ctx, end := s.begin(ctx, "query")
	defer func() { end(err) }()

	mode := q.Mode
	if mode == "" {
		mode = vectorstore.ModeDefault
	}
	if _, err := vectorstore.ParseQueryMode(string(mode)); err != nil {
		return nil, err
	}
	topK := q.SimilarityTopK
	if topK <= 0 {
		topK = 2
	}
	filter, err := BuildFilter(q.Filters, s.opts.FilterableMetadata)
	if err != nil {
		return nil, err
	}

	req := searchRequest{
		Top:    topK,
		Filter: filter,
		Select: strings.Join([]string{s.opts.IDFieldKey, s.opts.ChunkFieldKey, s.opts.MetadataStringFieldKey, s.opts.DocIDFieldKey}, ","),
	}
	if mode.NeedsEmbedding() {
		if len(q.QueryEmbedding) == 0 {
			return nil, ragerrors.Validation("query_embedding", fmt.Sprintf("required in %s mode", mode))
		}
		req.VectorQueries = []vectorQuery{{
			Kind:   "vector",
			Vector: q.QueryEmbedding,
			Fields: s.opts.EmbeddingFieldKey,
			K:      topK,
		}}
	}
	if mode.NeedsText() {
		if strings.TrimSpace(q.QueryStr) == "" {
			return nil, ragerrors.Validation("query", fmt.Sprintf("required in %s mode", mode))
		}
		req.Search = q.QueryStr
	}
	if mode == vectorstore.ModeSemanticHybrid {
		req.QueryType = "semantic"
		req.SemanticConfiguration = s.opts.SemanticConfiguration
	}

	resp, err := s.search(ctx, req)
	if err != nil {
		return nil, err
	}

	res = &vectorstore.QueryResult{Nodes: make([]schema.NodeWithScore, 0, len(resp.Value))}
	for _, doc := range resp.Value {
		node := s.fromDocument(doc)
		score, _ := doc["@search.score"].(float64)
		if mode == vectorstore.ModeSemanticHybrid {
			if reranker, ok := doc["@search.rerankerScore"].(float64); ok {
				score = reranker
			}
		}
		res.Nodes = append(res.Nodes, schema.NodeWithScore{Node: node, Score: score})
	}
	return res, nil
}

func (s *Store) search(ctx context.Context, req searchRequest) (*searchResponse, error) {
	resp, err := s.do(ctx, http.MethodPost, s.docsPath("search"), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if !runtime.HasStatusCode(resp, http.StatusOK) {
		return nil, responseError(resp)
	}
	var out searchResponse
	if err := runtime.UnmarshalAsJSON(resp, &out); err != nil {
		return nil, &ragerrors.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Message: "decode search response", Err: err}
	}
	return &out, nil
}

func (s *Store) toDocument(node schema.Node) (map[string]any, error) {
	meta := node.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, ragerrors.Validation("node.metadata", err.Error())
	}
	doc := map[string]any{
		s.opts.IDFieldKey:             node.ID,
		s.opts.ChunkFieldKey:          node.Text,
		s.opts.EmbeddingFieldKey:      node.Embedding,
		s.opts.MetadataStringFieldKey: string(metaJSON),
		s.opts.DocIDFieldKey:          node.DocID,
	}
	for key, mf := range s.opts.FilterableMetadata {
		if v, ok := meta[key]; ok {
			doc[mf.Field] = v
		}
	}
	return doc, nil
}

func (s *Store) fromDocument(doc map[string]any) schema.Node {
	node := schema.Node{}
	node.ID, _ = doc[s.opts.IDFieldKey].(string)
	node.Text, _ = doc[s.opts.ChunkFieldKey].(string)
	node.DocID, _ = doc[s.opts.DocIDFieldKey].(string)
	if raw, ok := doc[s.opts.MetadataStringFieldKey].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &node.Metadata); err != nil {
			node.Metadata = map[string]any{"_raw_metadata": raw}
		}
	}
	return node
}
