package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "ragkit/pkg/errors"
)

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// mockOpenAIServer answers the embeddings endpoint with reversed indices to
// check that the provider restores input order.
func mockOpenAIServer(t *testing.T, path string, check func(r *http.Request)) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if check != nil {
			check(r)
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), 0.5, 0.25},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 4, "total_tokens": 4},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIEmbeddingProvider_EmbedBatch(t *testing.T) {
	server := mockOpenAIServer(t, "/embeddings", func(r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
	})

	p, err := NewOpenAIEmbeddingProvider(OpenAIOptions{
		APIKey:  "sk-test",
		Model:   "text-embedding-3-small",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	resp, err := p.EmbedBatch(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, []float32{0, 0.5, 0.25}, resp.Embeddings[0])
	assert.Equal(t, []float32{1, 0.5, 0.25}, resp.Embeddings[1])
	assert.Equal(t, 4, resp.Usage.InputTokens)
}

func TestOpenAIEmbeddingProvider_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	p, err := NewOpenAIEmbeddingProvider(OpenAIOptions{APIKey: "sk-bad", Model: "text-embedding-3-small", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.EmbedBatch(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, ragerrors.ErrAuthentication)
}

func TestOpenAIEmbeddingProvider_RateLimited(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	p, err := NewOpenAIEmbeddingProvider(OpenAIOptions{APIKey: "sk-test", Model: "m", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.EmbedBatch(context.Background(), []string{"hello"})
	var pe *ragerrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.True(t, ragerrors.IsRetryable(err))
	assert.Equal(t, 1, calls, "sdk retries must be disabled")
}

func TestOpenAIEmbeddingProvider_Construction(t *testing.T) {
	_, err := NewOpenAIEmbeddingProvider(OpenAIOptions{Model: "m"})
	assert.ErrorIs(t, err, ragerrors.ErrAuthentication)

	_, err = NewOpenAIEmbeddingProvider(OpenAIOptions{APIKey: "sk", Model: ""})
	assert.ErrorIs(t, err, ragerrors.ErrValidation)
}

func TestAzureOpenAIEmbeddingProvider_EmbedBatch(t *testing.T) {
	server := mockOpenAIServer(t, "/openai/deployments/ada-002/embeddings", func(r *http.Request) {
		assert.Equal(t, "azure-key", r.Header.Get("Api-Key"))
		assert.Equal(t, "2024-09-01-preview", r.URL.Query().Get("api-version"))
	})

	p, err := NewAzureOpenAIEmbeddingProvider(AzureOpenAIOptions{
		Endpoint:   server.URL,
		APIKey:     "azure-key",
		Deployment: "ada-002",
	})
	require.NoError(t, err)
	assert.Equal(t, "azure", p.Name())
	assert.Equal(t, "ada-002", p.Model())

	resp, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 3)
}

func TestAzureOpenAIEmbeddingProvider_Construction(t *testing.T) {
	_, err := NewAzureOpenAIEmbeddingProvider(AzureOpenAIOptions{Deployment: "d", APIKey: "k"})
	assert.ErrorIs(t, err, ragerrors.ErrValidation)

	_, err = NewAzureOpenAIEmbeddingProvider(AzureOpenAIOptions{Endpoint: "https://x.openai.azure.com", Deployment: "d"})
	assert.ErrorIs(t, err, ragerrors.ErrAuthentication)
}
