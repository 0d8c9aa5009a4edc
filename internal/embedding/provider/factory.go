package provider

import (
	"context"
	"fmt"

	"ragkit/internal/azauth"
	"ragkit/internal/cache"
	"ragkit/internal/config"
	"ragkit/internal/embedding"
	"ragkit/internal/metrics"
	ragerrors "ragkit/pkg/errors"
)

// PlaceholderToken is treated as a missing credential.
const PlaceholderToken = config.PlaceholderToken

// New builds the embedding provider selected by cfg.Embedding.Provider.
func New(ctx context.Context, cfg *config.Config) (embedding.EmbeddingProvider, error) {
	ec := cfg.Embedding
	switch ec.Provider {
	case DeepInfraName:
		return NewDeepInfraEmbeddingProvider(DeepInfraOptions{
			APIToken: ec.APIToken,
			Model:    ec.Model,
			BaseURL:  ec.BaseURL,
			Timeout:  ec.Timeout,
		})
	case OpenAIName:
		return NewOpenAIEmbeddingProvider(OpenAIOptions{
			APIKey:  ec.APIToken,
			Model:   ec.Model,
			BaseURL: ec.BaseURL,
			Timeout: ec.Timeout,
		})
	case AzureName:
		az := cfg.AzureOpenAI
		opts := AzureOpenAIOptions{
			Endpoint:   az.Endpoint,
			APIVersion: az.APIVersion,
			APIKey:     az.APIKey,
			Deployment: az.EmbeddingDeployment,
			Timeout:    ec.Timeout,
		}
		if az.UseDefaultCredential {
			cred, err := azauth.DefaultCredential()
			if err != nil {
				return nil, err
			}
			opts.Credential = cred
		}
		return NewAzureOpenAIEmbeddingProvider(opts)
	case GeminiName:
		return NewGeminiEmbeddingProvider(ctx, GeminiOptions{
			APIKey:  cfg.Gemini.APIKey,
			Model:   ec.Model,
			BaseURL: ec.BaseURL,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ragerrors.ErrUnsupportedProvider, ec.Provider)
	}
}

// NewBatchClient builds the configured provider and wraps it in a batch
// client with the configured retry, breaker and cache policy.
func NewBatchClient(ctx context.Context, cfg *config.Config, vc cache.VectorCache, m *metrics.Metrics) (*embedding.BatchClient, error) {
	p, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ec := cfg.Embedding
	opts := embedding.Options{
		BatchSize:            ec.BatchSize,
		MaxRetries:           ec.MaxRetries,
		RetryInitialInterval: ec.RetryInitialInterval,
		RetryMaxInterval:     ec.RetryMaxInterval,
		TextPrefix:           ec.TextPrefix,
		QueryPrefix:          ec.QueryPrefix,
		Cache:                vc,
		Metrics:              m,
	}
	if ec.Breaker.Enabled {
		opts.Breaker = &embedding.BreakerOptions{
			FailureThreshold: ec.Breaker.FailureThreshold,
			OpenTimeout:      ec.Breaker.OpenTimeout,
		}
	}
	return embedding.NewBatchClient(p, opts)
}
