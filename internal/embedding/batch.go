package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ragkit/internal/cache"
	"ragkit/internal/metrics"
	ragerrors "ragkit/pkg/errors"
	"ragkit/pkg/logger"
)

var tracer = otel.Tracer("ragkit/internal/embedding")

// BreakerOptions configure the circuit breaker guarding the provider.
type BreakerOptions struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

// Options tune a BatchClient. Zero values fall back to DefaultOptions.
type Options struct {
	BatchSize            int
	MaxRetries           int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	TextPrefix           string
	QueryPrefix          string
	Breaker              *BreakerOptions
	Cache                cache.VectorCache
	Metrics              *metrics.Metrics
}

// DefaultOptions mirror the usual embedding client settings: ten texts per
// request and up to five retries.
func DefaultOptions() Options {
	return Options{
		BatchSize:            10,
		MaxRetries:           5,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
	}
}

// BatchClient turns an ordered list of texts into an ordered list of vectors
// through an EmbeddingProvider. Sub-batches are sent one at a time.
type BatchClient struct {
	provider EmbeddingProvider
	opts     Options
	breaker  *gobreaker.CircuitBreaker
}

// NewBatchClient wraps provider.
func NewBatchClient(provider EmbeddingProvider, opts Options) (*BatchClient, error) {
	if provider == nil {
		return nil, ragerrors.Validation("provider", "must not be nil")
	}
	defaults := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = defaults.RetryInitialInterval
	}
	if opts.RetryMaxInterval <= 0 {
		opts.RetryMaxInterval = defaults.RetryMaxInterval
	}

	c := &BatchClient{provider: provider, opts: opts}
	if opts.Breaker != nil {
		c.breaker = newBreaker(provider.Name(), *opts.Breaker)
	}
	return c, nil
}

func newBreaker(name string, opts BreakerOptions) *gobreaker.CircuitBreaker {
	threshold := uint32(5)
	if opts.FailureThreshold > 0 {
		threshold = uint32(opts.FailureThreshold)
	}
	timeout := opts.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-" + name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes say nothing about provider health
			return err == nil ||
				errors.Is(err, ragerrors.ErrValidation) ||
				errors.Is(err, ragerrors.ErrAuthentication) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// Model returns the provider's model identifier.
func (c *BatchClient) Model() string {
	return c.provider.Model()
}

// ProviderName returns the provider's name.
func (c *BatchClient) ProviderName() string {
	return c.provider.Name()
}

// GetTextEmbeddingsBatch embeds texts and returns one vector per text in
// input order. All vectors share one dimensionality. An empty list fails with
// a validation error without contacting the provider.
func (c *BatchClient) GetTextEmbeddingsBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, c.opts.TextPrefix)
}

// GetTextEmbedding embeds a single document text.
func (c *BatchClient) GetTextEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text}, c.opts.TextPrefix)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// GetQueryEmbedding embeds a search query, applying the query prefix.
func (c *BatchClient) GetQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{query}, c.opts.QueryPrefix)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *BatchClient) embed(ctx context.Context, texts []string, prefix string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "embedding.batch", trace.WithAttributes(
		attribute.String("embedding.provider", c.provider.Name()),
		attribute.String("embedding.model", c.provider.Model()),
		attribute.Int("embedding.texts", len(texts)),
	))
	defer span.End()

	inputs := make([]string, len(texts))
	for i, text := range texts {
		inputs[i] = prefix + text
	}

	out := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	for i, input := range inputs {
		if c.opts.Cache != nil {
			vec, ok := c.opts.Cache.Get(ctx, cache.EmbeddingKey(c.provider.Model(), input))
			c.opts.Metrics.CacheLookup(ok)
			if ok {
				out[i] = vec
				continue
			}
		}
		pending = append(pending, i)
	}
	span.SetAttributes(attribute.Int("embedding.cache_misses", len(pending)))

	for start := 0; start < len(pending); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(pending))
		idx := pending[start:end]

		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = inputs[i]
		}

		vecs, err := c.callWithRetry(ctx, batch)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		for j, i := range idx {
			out[i] = vecs[j]
			if c.opts.Cache != nil {
				c.opts.Cache.Set(ctx, cache.EmbeddingKey(c.provider.Model(), inputs[i]), vecs[j])
			}
		}
	}

	// Cached vectors may come from an older model revision
	if err := CheckDimensions(c.provider.Name(), out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (c *BatchClient) callWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	operation := func() ([][]float32, error) {
		vecs, err := c.call(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		if ragerrors.IsRetryable(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInitialInterval
	b.MaxInterval = c.opts.RetryMaxInterval

	vecs, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("embedding request failed, retrying",
				"provider", c.provider.Name(), "texts", len(batch), "retry_in", next.String(), "error", err)
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, err
	}
	return vecs, nil
}

// call performs exactly one provider request, through the breaker if any.
func (c *BatchClient) call(ctx context.Context, batch []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := c.guarded(ctx, batch)
	c.opts.Metrics.ObserveEmbedding(c.provider.Name(), c.provider.Model(), len(batch), time.Since(start), err)
	if err != nil {
		logger.Debug("embedding request failed", "provider", c.provider.Name(), "texts", len(batch), "error", err)
		return nil, err
	}
	logger.Debug("embedding request done", "provider", c.provider.Name(), "texts", len(batch), "elapsed", time.Since(start).String())
	return vecs, nil
}

func (c *BatchClient) guarded(ctx context.Context, batch []string) ([][]float32, error) {
	run := func() ([][]float32, error) {
		resp, err := c.provider.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		if err := CheckResponse(c.provider.Name(), len(batch), resp.Embeddings); err != nil {
			return nil, err
		}
		return resp.Embeddings, nil
	}
	if c.breaker == nil {
		return run()
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		vecs, err := run()
		if err != nil {
			return nil, err
		}
		return vecs, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ragerrors.ProviderError{
				Provider: c.provider.Name(),
				Message:  fmt.Sprintf("circuit breaker %s", c.breaker.State()),
				Err:      err,
			}
		}
		return nil, err
	}
	return result.([][]float32), nil
}
