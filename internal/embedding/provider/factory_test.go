package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragkit/internal/config"
	ragerrors "ragkit/pkg/errors"
)

func TestNew(t *testing.T) {
	cfg := &config.Config{}
	cfg.Embedding.Provider = "deepinfra"
	cfg.Embedding.APIToken = "token"
	cfg.Embedding.Model = "BAAI/bge-large-en-v1.5"

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "deepinfra", p.Name())
	assert.Equal(t, "BAAI/bge-large-en-v1.5", p.Model())

	cfg.Embedding.Provider = "openai"
	cfg.Embedding.Model = "text-embedding-3-small"
	p, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	cfg.Embedding.Provider = "azure"
	cfg.AzureOpenAI.Endpoint = "https://example.openai.azure.com"
	cfg.AzureOpenAI.APIKey = "key"
	cfg.AzureOpenAI.EmbeddingDeployment = "embed"
	p, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "embed", p.Model())

	cfg.Embedding.Provider = "cohere"
	_, err = New(context.Background(), cfg)
	assert.ErrorIs(t, err, ragerrors.ErrUnsupportedProvider)
}

func TestNewRejectsPlaceholderToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.Embedding.Provider = "deepinfra"
	cfg.Embedding.APIToken = config.PlaceholderToken

	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, ragerrors.ErrAuthentication)
}

func TestNewBatchClient(t *testing.T) {
	cfg := &config.Config{}
	cfg.Embedding.Provider = "deepinfra"
	cfg.Embedding.APIToken = "token"
	cfg.Embedding.Model = "BAAI/bge-large-en-v1.5"
	cfg.Embedding.BatchSize = 4
	cfg.Embedding.Breaker.Enabled = true
	cfg.Embedding.Breaker.FailureThreshold = 3

	c, err := NewBatchClient(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "BAAI/bge-large-en-v1.5", c.Model())
	assert.Equal(t, "deepinfra", c.ProviderName())
}
