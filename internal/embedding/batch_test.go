package embedding

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragkit/internal/cache"
	"ragkit/internal/metrics"
	ragerrors "ragkit/pkg/errors"
)

type fakeProvider struct {
	mu       sync.Mutex
	calls    [][]string
	failures []error
	dim      int
	embedFn  func(texts []string) [][]float32
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	if f.embedFn != nil {
		return &Response{Embeddings: f.embedFn(texts)}, nil
	}
	dim := f.dim
	if dim == 0 {
		dim = 3
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dim)
		vec[0] = float32(len(text))
		out[i] = vec
	}
	return &Response{Embeddings: out}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func fastOptions() Options {
	return Options{
		BatchSize:            10,
		MaxRetries:           3,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     2 * time.Millisecond,
	}
}

func TestBatchClient_PreservesOrderAndCount(t *testing.T) {
	p := &fakeProvider{}
	c, err := NewBatchClient(p, fastOptions())
	require.NoError(t, err)

	vecs, err := c.GetTextEmbeddingsBatch(context.Background(), []string{"hello", "world!"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(5), vecs[0][0])
	assert.Equal(t, float32(6), vecs[1][0])
	assert.Len(t, vecs[0], len(vecs[1]))
	assert.Equal(t, 1, p.callCount())
	assert.Equal(t, "fake-model", c.Model())
}

func TestBatchClient_EmptyInputMakesNoCall(t *testing.T) {
	p := &fakeProvider{}
	c, err := NewBatchClient(p, fastOptions())
	require.NoError(t, err)

	_, err = c.GetTextEmbeddingsBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ragerrors.ErrValidation)
	assert.Equal(t, 0, p.callCount())
}

func TestBatchClient_SplitsIntoSubBatches(t *testing.T) {
	p := &fakeProvider{}
	opts := fastOptions()
	opts.BatchSize = 2
	c, err := NewBatchClient(p, opts)
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := c.GetTextEmbeddingsBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vecs[i][0])
	}
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc", "dddd"}, {"eeeee"}}, p.calls)
}

func TestBatchClient_AppliesPrefixes(t *testing.T) {
	p := &fakeProvider{}
	opts := fastOptions()
	opts.TextPrefix = "passage: "
	opts.QueryPrefix = "query: "
	c, err := NewBatchClient(p, opts)
	require.NoError(t, err)

	_, err = c.GetTextEmbedding(context.Background(), "doc")
	require.NoError(t, err)
	_, err = c.GetQueryEmbedding(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"passage: doc"}, {"query: q"}}, p.calls)
}

func TestBatchClient_RetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{failures: []error{
		&ragerrors.ProviderError{Provider: "fake", StatusCode: http.StatusTooManyRequests},
		&ragerrors.ProviderError{Provider: "fake", StatusCode: http.StatusBadGateway},
	}}
	c, err := NewBatchClient(p, fastOptions())
	require.NoError(t, err)

	vecs, err := c.GetTextEmbeddingsBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 3, p.callCount())
}

func TestBatchClient_GivesUpAfterMaxRetries(t *testing.T) {
	fail := &ragerrors.ProviderError{Provider: "fake", StatusCode: http.StatusInternalServerError}
	p := &fakeProvider{failures: []error{fail, fail, fail, fail, fail}}
	opts := fastOptions()
	opts.MaxRetries = 2
	c, err := NewBatchClient(p, opts)
	require.NoError(t, err)

	_, err = c.GetTextEmbeddingsBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerrors.ErrProvider)
	var pe *ragerrors.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusInternalServerError, pe.StatusCode)
	assert.Equal(t, 3, p.callCount())
}

func TestBatchClient_DoesNotRetryAuthFailures(t *testing.T) {
	p := &fakeProvider{failures: []error{
		&ragerrors.AuthenticationError{Provider: "fake", StatusCode: http.StatusUnauthorized},
	}}
	c, err := NewBatchClient(p, fastOptions())
	require.NoError(t, err)

	_, err = c.GetTextEmbeddingsBatch(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ragerrors.ErrAuthentication)
	assert.Equal(t, 1, p.callCount())
}

func TestBatchClient_RejectsCountMismatch(t *testing.T) {
	p := &fakeProvider{embedFn: func(texts []string) [][]float32 {
		return [][]float32{{1, 2}}
	}}
	c, err := NewBatchClient(p, fastOptions())
	require.NoError(t, err)

	_, err = c.GetTextEmbeddingsBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ragerrors.ErrProvider)
	assert.Equal(t, 1, p.callCount())
}

func TestBatchClient_RejectsMixedDimensions(t *testing.T) {
	p := &fakeProvider{embedFn: func(texts []string) [][]float32 {
		return [][]float32{{1, 2}, {1, 2, 3}}
	}}
	c, err := NewBatchClient(p, fastOptions())
	require.NoError(t, err)

	_, err = c.GetTextEmbeddingsBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ragerrors.ErrInvalidDimension)
}

func TestBatchClient_UsesCache(t *testing.T) {
	p := &fakeProvider{}
	m := metrics.New()
	opts := fastOptions()
	opts.Cache = cache.NewLRUCache(16, 0)
	opts.Metrics = m
	c, err := NewBatchClient(p, opts)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := c.GetTextEmbeddingsBatch(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	second, err := c.GetTextEmbeddingsBatch(ctx, []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, [][]string{{"alpha", "beta"}, {"gamma"}}, p.calls)

	second, err = c.GetTextEmbeddingsBatch(ctx, []string{"gamma"})
	require.NoError(t, err)
	assert.Len(t, second, 1)
	assert.Equal(t, 2, p.callCount())
}

func TestBatchClient_BreakerOpensAfterFailures(t *testing.T) {
	fail := &ragerrors.ProviderError{Provider: "fake", StatusCode: http.StatusServiceUnavailable}
	p := &fakeProvider{failures: []error{fail, fail, fail, fail}}
	opts := fastOptions()
	opts.MaxRetries = 0
	opts.Breaker = &BreakerOptions{FailureThreshold: 2, OpenTimeout: time.Hour}
	c, err := NewBatchClient(p, opts)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err = c.GetTextEmbeddingsBatch(ctx, []string{"x"})
		require.Error(t, err)
	}
	assert.Equal(t, 2, p.callCount())

	_, err = c.GetTextEmbeddingsBatch(ctx, []string{"x"})
	assert.ErrorIs(t, err, ragerrors.ErrProvider)
	assert.Contains(t, err.Error(), "circuit breaker")
	assert.Equal(t, 2, p.callCount())
}

func TestBatchClient_StopsOnCancelledContext(t *testing.T) {
	p := &fakeProvider{failures: []error{context.Canceled}}
	c, err := NewBatchClient(p, fastOptions())
	require.NoError(t, err)

	_, err = c.GetTextEmbeddingsBatch(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.callCount())
}

func TestNewBatchClient_NilProvider(t *testing.T) {
	_, err := NewBatchClient(nil, DefaultOptions())
	assert.ErrorIs(t, err, ragerrors.ErrValidation)
}
