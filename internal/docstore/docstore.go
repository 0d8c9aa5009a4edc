// Package docstore tracks ingested documents by content hash so re-ingesting
// a directory only touches changed files.
package docstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DocStore maps document IDs to content hashes.
type DocStore interface {
	GetHash(ctx context.Context, docID string) (string, bool, error)
	SetHash(ctx context.Context, docID, hash string) error
	Delete(ctx context.Context, docID string) error
}

// New builds the configured backend. The Redis backend needs a client.
func New(backend, namespace string, client *redis.Client) (DocStore, error) {
	switch strings.ToLower(backend) {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis docstore requires a redis client")
		}
		return NewRedis(client, namespace), nil
	default:
		return nil, fmt.Errorf("unknown docstore backend %q", backend)
	}
}

// Memory is a process local DocStore.
type Memory struct {
	mu     sync.RWMutex
	hashes map[string]string
}

func NewMemory() *Memory {
	return &Memory{hashes: make(map[string]string)}
}

func (m *Memory) GetHash(_ context.Context, docID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hash, ok := m.hashes[docID]
	return hash, ok, nil
}

func (m *Memory) SetHash(_ context.Context, docID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[docID] = hash
	return nil
}

func (m *Memory) Delete(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, docID)
	return nil
}

// Redis keeps hashes in one Redis hash per namespace.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, namespace string) *Redis {
	if namespace == "" {
		namespace = "default"
	}
	return &Redis{client: client, key: "ragkit:docstore:" + namespace}
}

func (r *Redis) GetHash(ctx context.Context, docID string) (string, bool, error) {
	hash, err := r.client.HGet(ctx, r.key, docID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("docstore get %s: %w", docID, err)
	}
	return hash, true, nil
}

func (r *Redis) SetHash(ctx context.Context, docID, hash string) error {
	if err := r.client.HSet(ctx, r.key, docID, hash).Err(); err != nil {
		return fmt.Errorf("docstore set %s: %w", docID, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, docID string) error {
	if err := r.client.HDel(ctx, r.key, docID).Err(); err != nil {
		return fmt.Errorf("docstore delete %s: %w", docID, err)
	}
	return nil
}
