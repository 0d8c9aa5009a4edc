// Package query answers questions over a VectorStoreIndex: it retrieves the
// closest nodes and, when an LLM is configured, synthesizes an answer from
// them.
package query

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ragkit/internal/index"
	"ragkit/internal/llm"
	"ragkit/internal/schema"
	"ragkit/internal/vectorstore"
	ragerrors "ragkit/pkg/errors"
	"ragkit/pkg/logger"
)

var tracer = otel.Tracer("ragkit/internal/query")

const promptTemplate = `Context information is below.
---------------------
%s
---------------------
Given the context information and not prior knowledge, answer the query.
Query: %s
Answer: `

// Retriever returns the nodes relevant to a query. *index.VectorStoreIndex
// satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, req index.RetrieveRequest) ([]schema.NodeWithScore, error)
}

type Request struct {
	Query          string                       `json:"query"`
	SimilarityTopK int                          `json:"similarity_top_k,omitempty"`
	Mode           vectorstore.QueryMode        `json:"mode,omitempty"`
	Filters        *vectorstore.MetadataFilters `json:"filters,omitempty"`
}

type Response struct {
	Answer      string                 `json:"answer"`
	SourceNodes []schema.NodeWithScore `json:"source_nodes"`
}

// Engine runs retrieval followed by optional synthesis.
type Engine struct {
	retriever Retriever
	llm       llm.LLM
}

// NewEngine builds an Engine. A nil model makes Query return the retrieved
// context as the answer.
func NewEngine(retriever Retriever, model llm.LLM) (*Engine, error) {
	if retriever == nil {
		return nil, ragerrors.Validation("retriever", "required")
	}
	return &Engine{retriever: retriever, llm: model}, nil
}

func (e *Engine) Query(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ragerrors.Validation("query", "must not be empty")
	}

	ctx, span := tracer.Start(ctx, "query.engine", trace.WithAttributes(
		attribute.String("query.mode", string(req.Mode)),
		attribute.Int("query.top_k", req.SimilarityTopK),
	))
	defer span.End()

	nodes, err := e.retriever.Retrieve(ctx, index.RetrieveRequest{
		Query:          req.Query,
		SimilarityTopK: req.SimilarityTopK,
		Mode:           req.Mode,
		Filters:        req.Filters,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("query.nodes", len(nodes)))

	contextStr := BuildContext(nodes)
	resp := &Response{SourceNodes: nodes}
	if e.llm == nil {
		resp.Answer = contextStr
		return resp, nil
	}
	if len(nodes) == 0 {
		logger.Warn("no context retrieved, answering without sources", "query", req.Query)
	}

	answer, err := e.llm.Complete(ctx, BuildPrompt(contextStr, req.Query))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}
	resp.Answer = strings.TrimSpace(answer)
	return resp, nil
}

// BuildContext joins node texts, best match first, separated by blank lines.
func BuildContext(nodes []schema.NodeWithScore) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if text := strings.TrimSpace(n.Node.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func BuildPrompt(contextStr, query string) string {
	return fmt.Sprintf(promptTemplate, contextStr, query)
}
