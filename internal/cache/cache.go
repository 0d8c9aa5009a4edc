package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/murmur3"
)

// VectorCache stores embedding vectors by key. Lookups never fail: a backend
// error is reported as a miss.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, value []float32)
}

// EmbeddingKey derives the cache key of a text embedded with model.
func EmbeddingKey(model, text string) string {
	return "emb:" + model + ":" + ContentHash(text)
}

// ContentHash returns the hex murmur3-128 digest of s.
func ContentHash(s string) string {
	h1, h2 := murmur3.Sum128([]byte(s))
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], h1)
	binary.BigEndian.PutUint64(b[8:], h2)
	return hex.EncodeToString(b[:])
}

// Options select a cache backend.
type Options struct {
	Backend  string
	Size     int
	TTL      time.Duration
	RedisURL string
}

// New builds the configured cache. Backend "none" returns a nil cache and a
// nil client; "redis" also returns the client so the caller can close it.
func New(opts Options) (VectorCache, *redis.Client, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "none":
		return nil, nil, nil
	case "memory":
		return NewLRUCache(opts.Size, opts.TTL), nil, nil
	case "redis":
		client, err := NewRedisClient(opts.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisCache(client, opts.TTL), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
