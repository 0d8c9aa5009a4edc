package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ragkit/internal/index"
	"ragkit/internal/query"
	"ragkit/internal/schema"
	ragerrors "ragkit/pkg/errors"
	"ragkit/pkg/logger"
)

func (s *Server) handleHealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":             "ok",
			"embedding_provider": s.app.Embedder.ProviderName(),
			"embedding_model":    s.app.Embedder.Model(),
		})
	}
}

func (s *Server) handleEmbeddings() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EmbeddingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
			return
		}

		var (
			vecs [][]float32
			err  error
		)
		switch req.Type {
		case "", "text":
			vecs, err = s.app.Embedder.GetTextEmbeddingsBatch(c.Request.Context(), req.Texts)
		case "query":
			if len(req.Texts) != 1 {
				writeError(c, ragerrors.Validation("texts", "query embeddings take exactly one text"))
				return
			}
			var vec []float32
			vec, err = s.app.Embedder.GetQueryEmbedding(c.Request.Context(), req.Texts[0])
			vecs = [][]float32{vec}
		default:
			err = ragerrors.Validation("type", "must be text or query")
		}
		if err != nil {
			writeError(c, err)
			return
		}

		resp := EmbeddingsResponse{Model: s.app.Embedder.Model(), Embeddings: vecs}
		if len(vecs) > 0 {
			resp.Dimension = len(vecs[0])
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleIngestDocuments() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
			return
		}

		docs := make([]schema.Document, len(req.Documents))
		for i, d := range req.Documents {
			docs[i] = schema.Document{ID: d.ID, Text: d.Text, Metadata: d.Metadata}
		}
		res, err := s.app.Index.FromDocuments(c.Request.Context(), docs)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, res)
	}
}

func (s *Server) handleDeleteDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := s.app.Index.DeleteDocument(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}

func (s *Server) handleRetrieve() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RetrieveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
			return
		}

		nodes, err := s.app.Index.Retrieve(c.Request.Context(), index.RetrieveRequest{
			Query:          req.Query,
			SimilarityTopK: req.SimilarityTopK,
			Mode:           req.Mode,
			Filters:        req.Filters,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, RetrieveResponse{Nodes: withoutEmbeddings(nodes)})
	}
}

func (s *Server) handleQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RetrieveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
			return
		}

		resp, err := s.app.Engine.Query(c.Request.Context(), query.Request{
			Query:          req.Query,
			SimilarityTopK: req.SimilarityTopK,
			Mode:           req.Mode,
			Filters:        req.Filters,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		resp.SourceNodes = withoutEmbeddings(resp.SourceNodes)
		c.JSON(http.StatusOK, resp)
	}
}

func withoutEmbeddings(nodes []schema.NodeWithScore) []schema.NodeWithScore {
	out := make([]schema.NodeWithScore, len(nodes))
	for i, n := range nodes {
		n.Node.Embedding = nil
		out[i] = n
	}
	return out
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status, kind := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, ragerrors.ErrValidation),
		errors.Is(err, ragerrors.ErrUnsupportedQueryMode):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, ragerrors.ErrAuthentication):
		status, kind = http.StatusUnauthorized, "authentication"
	case errors.Is(err, ragerrors.ErrDocumentNotFound),
		errors.Is(err, ragerrors.ErrIndexNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, ragerrors.ErrProvider):
		status, kind = http.StatusBadGateway, "provider"
	case errors.Is(err, ragerrors.ErrInvalidDimension):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, context.DeadlineExceeded):
		status, kind = http.StatusGatewayTimeout, "timeout"
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Kind: kind})
}
