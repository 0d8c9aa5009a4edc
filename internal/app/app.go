// Package app assembles ragkit's components from a Config.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ragkit/internal/azauth"
	"ragkit/internal/cache"
	"ragkit/internal/config"
	"ragkit/internal/docstore"
	"ragkit/internal/embedding"
	"ragkit/internal/embedding/provider"
	"ragkit/internal/index"
	"ragkit/internal/llm"
	"ragkit/internal/loader"
	"ragkit/internal/metrics"
	"ragkit/internal/query"
	"ragkit/internal/vectorstore"
	"ragkit/internal/vectorstore/azuresearch"
	"ragkit/internal/vectorstore/memory"
	"ragkit/pkg/logger"
)

const docstoreNamespace = "default"

// App holds the wired components. Close releases shared connections.
type App struct {
	Config   *config.Config
	Metrics  *metrics.Metrics
	Embedder *embedding.BatchClient
	Store    vectorstore.VectorStore
	Index    *index.VectorStoreIndex
	Engine   *query.Engine
	Reader   *loader.Reader

	redis *redis.Client
}

// NewEmbedder builds only the embedding client and its cache. The returned
// closer must be called when done.
func NewEmbedder(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*embedding.BatchClient, func() error, error) {
	vc, client, err := cache.New(cache.Options{
		Backend:  cfg.Cache.Backend,
		Size:     cfg.Cache.Size,
		TTL:      cfg.Cache.TTL,
		RedisURL: cfg.Cache.RedisURL,
	})
	if err != nil {
		return nil, nil, err
	}
	closer := func() error {
		if client != nil {
			return client.Close()
		}
		return nil
	}
	emb, err := provider.NewBatchClient(ctx, cfg, vc, m)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return emb, closer, nil
}

// Open wires every component. Building the Azure AI Search store may create
// or validate the remote index.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}

	vc, client, err := cache.New(cache.Options{
		Backend:  cfg.Cache.Backend,
		Size:     cfg.Cache.Size,
		TTL:      cfg.Cache.TTL,
		RedisURL: cfg.Cache.RedisURL,
	})
	if err != nil {
		return nil, err
	}
	a.redis = client

	if err := a.open(ctx, vc); err != nil {
		_ = a.Close()
		return nil, err
	}
	logger.Info("ragkit components ready",
		"embedding_provider", a.Embedder.ProviderName(),
		"embedding_model", a.Embedder.Model(),
		"vector_store", cfg.VectorStore.Backend,
		"llm", cfg.LLM.Provider)
	return a, nil
}

func (a *App) open(ctx context.Context, vc cache.VectorCache) error {
	cfg := a.Config

	emb, err := provider.NewBatchClient(ctx, cfg, vc, a.Metrics)
	if err != nil {
		return err
	}
	a.Embedder = emb

	if a.Store, err = newVectorStore(ctx, cfg, a.Metrics); err != nil {
		return err
	}

	if cfg.DocStore.Backend == "redis" && a.redis == nil {
		if a.redis, err = cache.NewRedisClient(cfg.Cache.RedisURL); err != nil {
			return err
		}
	}
	docs, err := docstore.New(cfg.DocStore.Backend, docstoreNamespace, a.redis)
	if err != nil {
		return err
	}

	splitter, err := loader.NewSentenceSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return err
	}
	a.Reader = loader.NewReader(loader.ReaderOptions{
		Extensions: cfg.Ingest.Extensions,
		Recursive:  cfg.Ingest.Recursive,
	})

	a.Index, err = index.New(a.Store, emb, index.Options{
		Splitter: splitter,
		DocStore: docs,
		Strategy: index.Strategy(cfg.DocStore.Strategy),
		Metrics:  a.Metrics,
	})
	if err != nil {
		return err
	}

	model, err := llm.New(ctx, cfg)
	if err != nil {
		return err
	}
	a.Engine, err = query.NewEngine(a.Index, model)
	return err
}

func newVectorStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (vectorstore.VectorStore, error) {
	switch cfg.VectorStore.Backend {
	case "memory":
		return memory.New(embedding.SimilarityMode(cfg.VectorStore.Similarity)), nil
	case "", "azure_search":
		as := cfg.VectorStore.AzureSearch
		fields := make(map[string]azuresearch.MetadataField, len(as.FilterableMetadata))
		for key, f := range as.FilterableMetadata {
			fields[key] = azuresearch.MetadataField{Field: f.Field, Type: f.Type}
		}
		opts := azuresearch.Options{
			Endpoint:                as.Endpoint,
			APIKey:                  as.APIKey,
			APIVersion:              as.APIVersion,
			IndexName:               as.IndexName,
			IndexManagement:         azuresearch.IndexManagement(as.IndexManagement),
			IDFieldKey:              as.IDFieldKey,
			ChunkFieldKey:           as.ChunkFieldKey,
			EmbeddingFieldKey:       as.EmbeddingFieldKey,
			MetadataStringFieldKey:  as.MetadataStringFieldKey,
			DocIDFieldKey:           as.DocIDFieldKey,
			EmbeddingDimensionality: as.EmbeddingDimensionality,
			LanguageAnalyzer:        as.LanguageAnalyzer,
			VectorAlgorithm:         as.VectorAlgorithm,
			Compression:             as.Compression,
			FilterableMetadata:      fields,
			SemanticConfiguration:   as.SemanticConfiguration,
			MaxRetries:              as.MaxRetries,
			Metrics:                 m,
		}
		if as.UseDefaultCredential {
			cred, err := azauth.DefaultCredential()
			if err != nil {
				return nil, err
			}
			opts.Credential = cred
		}
		return azuresearch.New(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}
}

func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
