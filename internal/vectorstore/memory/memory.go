// Package memory is an in-process vector store for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ragkit/internal/embedding"
	"ragkit/internal/schema"
	"ragkit/internal/vectorstore"
	ragerrors "ragkit/pkg/errors"
)

// Store keeps nodes in memory and answers default mode queries by brute
// force similarity.
type Store struct {
	mu    sync.RWMutex
	mode  embedding.SimilarityMode
	nodes map[string]schema.Node
	order []string
}

func New(mode embedding.SimilarityMode) *Store {
	if mode == "" {
		mode = embedding.SimilarityCosine
	}
	return &Store{mode: mode, nodes: make(map[string]schema.Node)}
}

func (s *Store) Add(_ context.Context, nodes []schema.Node) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(nodes))
	for i, node := range nodes {
		if node.ID == "" {
			return nil, ragerrors.Validation("node.id", "required")
		}
		if len(node.Embedding) == 0 {
			return nil, ragerrors.Validation("node.embedding", fmt.Sprintf("node %s has no embedding", node.ID))
		}
		if _, exists := s.nodes[node.ID]; !exists {
			s.order = append(s.order, node.ID)
		}
		s.nodes[node.ID] = node
		ids[i] = node.ID
	}
	return ids, nil
}

func (s *Store) Delete(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, id := range s.order {
		if s.nodes[id].DocID == docID {
			delete(s.nodes, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

func (s *Store) Query(_ context.Context, q vectorstore.Query) (*vectorstore.QueryResult, error) {
	if q.Mode != "" && q.Mode != vectorstore.ModeDefault {
		return nil, fmt.Errorf("%w: %s is not supported by the memory store", ragerrors.ErrUnsupportedQueryMode, q.Mode)
	}
	if len(q.QueryEmbedding) == 0 {
		return nil, ragerrors.Validation("query_embedding", "required")
	}
	if err := q.Filters.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]schema.NodeWithScore, 0, len(s.order))
	for _, id := range s.order {
		node := s.nodes[id]
		if !Match(q.Filters, node.Metadata) {
			continue
		}
		score, err := embedding.Similarity(q.QueryEmbedding, node.Embedding, s.mode)
		if err != nil {
			return nil, err
		}
		hits = append(hits, schema.NodeWithScore{Node: node, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if q.SimilarityTopK > 0 && len(hits) > q.SimilarityTopK {
		hits = hits[:q.SimilarityTopK]
	}
	return &vectorstore.QueryResult{Nodes: hits}, nil
}

// Len returns the number of stored nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
