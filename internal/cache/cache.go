// Package cache provides bounded LRU caches for generated analysis text.
//
// Caches are process-wide singletons constructed at startup and shared across
// all requests: identical error text from different students hits the same
// entry.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a fixed-capacity LRU mapping a content fingerprint to a previously
// generated analysis string.
type Cache struct {
	entries *lru.Cache[string, string]
}

// New creates a cache holding at most capacity entries.
func New(capacity int) (*Cache, error) {
	entries, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Get returns the cached value and marks the entry most recently used.
func (c *Cache) Get(key string) (string, bool) {
	return c.entries.Get(key)
}

// Put inserts or overwrites the entry, evicting the least recently used one
// when the cache is at capacity.
func (c *Cache) Put(key, value string) {
	c.entries.Add(key, value)
}

// Len reports the current number of entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// KeyOf builds a deterministic, order-sensitive fingerprint of the inputs.
// Each part is length-prefixed before hashing so that ("ab","c") and
// ("a","bc") never collide.
func KeyOf(parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, part := range parts {
		part = strings.TrimSpace(part)
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
