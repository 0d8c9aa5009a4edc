package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveEmbedding(t *testing.T) {
	m := New()
	m.ObserveEmbedding("deepinfra", "BAAI/bge-large-en-v1.5", 2, 10*time.Millisecond, nil)
	m.ObserveEmbedding("deepinfra", "BAAI/bge-large-en-v1.5", 2, 10*time.Millisecond, errors.New("boom"))
	m.ObserveEmbedding("deepinfra", "BAAI/bge-large-en-v1.5", 2, 10*time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues("deepinfra", "BAAI/bge-large-en-v1.5", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues("deepinfra", "BAAI/bge-large-en-v1.5", OutcomeError)))
}

func TestCacheAndVectorStoreCounters(t *testing.T) {
	m := New()
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.ObserveVectorStore("add", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VectorStoreOps.WithLabelValues("add", OutcomeSuccess)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEmbedding("p", "m", 1, time.Second, nil)
		m.CacheLookup(true)
		m.ObserveVectorStore("query", nil)
		m.ObserveQuery("default", time.Second)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveQuery("hybrid", 20*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ragkit_query_duration_seconds_count{mode="hybrid"} 1`)
}
