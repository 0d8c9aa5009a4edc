package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragkit/internal/docstore"
	"ragkit/internal/loader"
	"ragkit/internal/metrics"
	"ragkit/internal/schema"
	"ragkit/internal/vectorstore"
	ragerrors "ragkit/pkg/errors"
	"ragkit/pkg/logger"
)

// DefaultSimilarityTopK is the number of nodes retrieved when a request does
// not say.
const DefaultSimilarityTopK = 2

// Strategy decides what happens when a document is ingested again.
type Strategy string

const (
	// StrategyUpserts skips unchanged documents and replaces changed ones.
	StrategyUpserts Strategy = "upserts"
	// StrategyDuplicatesOnly skips any document ID seen before.
	StrategyDuplicatesOnly Strategy = "duplicates_only"
	// StrategyNone ingests everything.
	StrategyNone Strategy = "none"
)

// Embedder turns text into vectors. *embedding.BatchClient satisfies it.
type Embedder interface {
	GetTextEmbeddingsBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetQueryEmbedding(ctx context.Context, query string) ([]float32, error)
	Model() string
}

// Options configure a VectorStoreIndex.
type Options struct {
	Splitter *loader.SentenceSplitter
	DocStore docstore.DocStore
	Strategy Strategy
	Metrics  *metrics.Metrics
}

// VectorStoreIndex chunks, embeds and stores documents, and retrieves the
// nodes closest to a query.
type VectorStoreIndex struct {
	store    vectorstore.VectorStore
	embedder Embedder
	splitter *loader.SentenceSplitter
	docs     docstore.DocStore
	strategy Strategy
	metrics  *metrics.Metrics
}

func New(store vectorstore.VectorStore, embedder Embedder, opts Options) (*VectorStoreIndex, error) {
	if store == nil {
		return nil, ragerrors.Validation("vector_store", "required")
	}
	if embedder == nil {
		return nil, ragerrors.Validation("embedder", "required")
	}
	if opts.Splitter == nil {
		s, err := loader.NewSentenceSplitter(1024, 20)
		if err != nil {
			return nil, err
		}
		opts.Splitter = s
	}
	if opts.DocStore == nil {
		opts.DocStore = docstore.NewMemory()
	}
	switch opts.Strategy {
	case "":
		opts.Strategy = StrategyUpserts
	case StrategyUpserts, StrategyDuplicatesOnly, StrategyNone:
	default:
		return nil, ragerrors.Validation("strategy", fmt.Sprintf("unsupported docstore strategy %q", opts.Strategy))
	}
	return &VectorStoreIndex{
		store:    store,
		embedder: embedder,
		splitter: opts.Splitter,
		docs:     opts.DocStore,
		strategy: opts.Strategy,
		metrics:  opts.Metrics,
	}, nil
}

// IngestResult summarizes a FromDocuments call.
type IngestResult struct {
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	NodeIDs  []string `json:"node_ids"`
}

// FromDocuments ingests docs according to the docstore strategy. Documents
// without an ID get a random one.
func (ix *VectorStoreIndex) FromDocuments(ctx context.Context, docs []schema.Document) (*IngestResult, error) {
	if len(docs) == 0 {
		return nil, ragerrors.Validation("documents", "must contain at least one document")
	}

	result := &IngestResult{}
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		if seen[doc.ID] {
			result.Skipped++
			continue
		}
		seen[doc.ID] = true

		hash := doc.Hash()
		action, err := ix.plan(ctx, doc.ID, hash)
		if err != nil {
			return nil, err
		}
		switch action {
		case actionSkip:
			logger.Debug("skipping unchanged document", "doc_id", doc.ID)
			result.Skipped++
			continue
		case actionReplace:
			if err := ix.store.Delete(ctx, doc.ID); err != nil {
				return nil, fmt.Errorf("delete stale nodes of %s: %w", doc.ID, err)
			}
			result.Updated++
		default:
			result.Inserted++
		}

		ids, err := ix.insertDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		if err := ix.docs.SetHash(ctx, doc.ID, hash); err != nil {
			return nil, err
		}
		result.NodeIDs = append(result.NodeIDs, ids...)
	}

	logger.Info("ingested documents", "inserted", result.Inserted, "updated", result.Updated,
		"skipped", result.Skipped, "nodes", len(result.NodeIDs))
	return result, nil
}

type action int

const (
	actionInsert action = iota
	actionReplace
	actionSkip
)

func (ix *VectorStoreIndex) plan(ctx context.Context, docID, hash string) (action, error) {
	if ix.strategy == StrategyNone {
		return actionInsert, nil
	}
	stored, exists, err := ix.docs.GetHash(ctx, docID)
	if err != nil {
		return actionInsert, err
	}
	switch {
	case !exists:
		return actionInsert, nil
	case ix.strategy == StrategyDuplicatesOnly:
		return actionSkip, nil
	case stored == hash:
		return actionSkip, nil
	default:
		return actionReplace, nil
	}
}

// Insert ingests a single document regardless of strategy.
func (ix *VectorStoreIndex) Insert(ctx context.Context, doc schema.Document) ([]string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	ids, err := ix.insertDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := ix.docs.SetHash(ctx, doc.ID, doc.Hash()); err != nil {
		return nil, err
	}
	return ids, nil
}

func (ix *VectorStoreIndex) insertDocument(ctx context.Context, doc schema.Document) ([]string, error) {
	nodes := ix.splitter.Split(doc)
	if len(nodes) == 0 {
		logger.Warn("document produced no chunks", "doc_id", doc.ID)
		return nil, nil
	}
	return ix.InsertNodes(ctx, nodes)
}

// InsertNodes embeds nodes that lack an embedding and stores them.
func (ix *VectorStoreIndex) InsertNodes(ctx context.Context, nodes []schema.Node) ([]string, error) {
	if len(nodes) == 0 {
		return nil, ragerrors.Validation("nodes", "must contain at least one node")
	}
	var (
		texts   []string
		missing []int
	)
	for i, node := range nodes {
		if len(node.Embedding) == 0 {
			texts = append(texts, node.Text)
			missing = append(missing, i)
		}
	}
	if len(texts) > 0 {
		vecs, err := ix.embedder.GetTextEmbeddingsBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		for j, i := range missing {
			nodes[i].Embedding = vecs[j]
		}
	}
	return ix.store.Add(ctx, nodes)
}

// DeleteDocument removes a document's nodes and forgets its hash.
func (ix *VectorStoreIndex) DeleteDocument(ctx context.Context, docID string) error {
	if strings.TrimSpace(docID) == "" {
		return ragerrors.Validation("doc_id", "required")
	}
	if err := ix.store.Delete(ctx, docID); err != nil {
		return err
	}
	return ix.docs.Delete(ctx, docID)
}

// RetrieveRequest selects nodes for a query.
type RetrieveRequest struct {
	Query          string
	SimilarityTopK int
	Mode           vectorstore.QueryMode
	Filters        *vectorstore.MetadataFilters
}

// Retrieve embeds the query when the mode needs it and returns the best
// matching nodes, best first.
func (ix *VectorStoreIndex) Retrieve(ctx context.Context, req RetrieveRequest) ([]schema.NodeWithScore, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return nil, ragerrors.Validation("query", "must not be empty")
	}
	mode, err := vectorstore.ParseQueryMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, err
	}
	topK := req.SimilarityTopK
	if topK <= 0 {
		topK = DefaultSimilarityTopK
	}

	q := vectorstore.Query{
		QueryStr:       req.Query,
		SimilarityTopK: topK,
		Mode:           mode,
		Filters:        req.Filters,
	}
	if mode.NeedsEmbedding() {
		vec, err := ix.embedder.GetQueryEmbedding(ctx, req.Query)
		if err != nil {
			return nil, err
		}
		q.QueryEmbedding = vec
	}

	res, err := ix.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	ix.metrics.ObserveQuery(string(mode), time.Since(start))
	return res.Nodes, nil
}
