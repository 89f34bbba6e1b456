// Package cache memoizes ranking results for repeated identical requests.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a bounded LRU keyed by request digest. A nil *Cache never hits.
type Cache[V any] struct {
	entries *lru.Cache[string, V]
}

func New[V any](size int) (*Cache[V], error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, V](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache[V]{entries: entries}, nil
}

func (c *Cache[V]) Get(key string) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	return c.entries.Get(key)
}

func (c *Cache[V]) Add(key string, v V) {
	if c != nil {
		c.entries.Add(key, v)
	}
}

func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Key digests the request parts. encoding/json sorts map keys, so two
// requests that differ only in key order share a digest.
func Key(parts ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("digest request: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
