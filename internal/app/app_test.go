package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragkit/internal/config"
	"ragkit/internal/index"
	"ragkit/internal/query"
	"ragkit/internal/schema"
	ragerrors "ragkit/pkg/errors"
)

func embeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		vecs := make([][]float32, len(req.Inputs))
		for i, in := range req.Inputs {
			lower := strings.ToLower(in)
			vecs[i] = []float32{float32(strings.Count(lower, "cat")), float32(strings.Count(lower, "dog")), 0.1}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vecs, "input_tokens": len(req.Inputs)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	p := filepath.Join(t.TempDir(), "ragkit.yaml")
	require.NoError(t, os.WriteFile(p, []byte(yaml), 0644))
	cfg, err := config.Load(config.Options{ConfigFile: p})
	require.NoError(t, err)
	return cfg
}

func TestOpenIngestAndQuery(t *testing.T) {
	srv := embeddingServer(t)
	cfg := loadConfig(t, `
embedding:
  provider: deepinfra
  api_token: test-token
  base_url: `+srv.URL+`
cache:
  backend: memory
vector_store:
  backend: memory
`)

	a, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cats.txt"), []byte("The cat sleeps all day."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dogs.md"), []byte("The dog fetches the ball."), 0644))

	ctx := context.Background()
	docs, err := a.Reader.LoadData(ctx, dir)
	require.NoError(t, err)
	res, err := a.Index.FromDocuments(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)

	resp, err := a.Engine.Query(ctx, query.Request{Query: "tell me about the dog", SimilarityTopK: 1})
	require.NoError(t, err)
	require.Len(t, resp.SourceNodes, 1)
	assert.Equal(t, "The dog fetches the ball.", resp.Answer)

	hits, err := a.Index.Retrieve(ctx, index.RetrieveRequest{Query: "cat"})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Contains(t, hits[0].Node.Text, "cat")
}

func TestOpenWithRedisDocStore(t *testing.T) {
	srv := embeddingServer(t)
	mr := miniredis.RunT(t)
	cfg := loadConfig(t, `
embedding:
  provider: deepinfra
  api_token: test-token
  base_url: `+srv.URL+`
cache:
  backend: none
  redis_url: redis://`+mr.Addr()+`
vector_store:
  backend: memory
docstore:
  backend: redis
`)

	a, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	doc := schema.Document{ID: "doc-1", Text: "A cat and a dog."}
	_, err = a.Index.Insert(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, doc.Hash(), mr.HGet("ragkit:docstore:default", "doc-1"))
}

func TestOpenRejectsMissingToken(t *testing.T) {
	t.Setenv("DEEPINFRA_API_TOKEN", "")
	cfg := loadConfig(t, `
embedding:
  provider: deepinfra
vector_store:
  backend: memory
`)
	_, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, ragerrors.ErrAuthentication)
}

func TestNewEmbedder(t *testing.T) {
	srv := embeddingServer(t)
	cfg := loadConfig(t, `
embedding:
  provider: deepinfra
  api_token: test-token
  base_url: `+srv.URL+`
`)
	emb, closeFn, err := NewEmbedder(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeFn()

	vecs, err := emb.GetTextEmbeddingsBatch(context.Background(), []string{"cat", "dog dog"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0.1}, {0, 2, 0.1}}, vecs)
}
