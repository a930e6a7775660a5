// SPDX-License-Identifier: AGPL-3.0-or-later
// Package idempotency provides the bounded client-key -> resource-id
// mapping used to make watcher creation safe against HTTP retries.
package idempotency

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/btouchard/jobwatch/internal/domain/models"
)

// DefaultSize is the design-target cache capacity.
const DefaultSize = 25

// Cache is a bounded, concurrency-safe mapping of client-supplied
// idempotency keys to the watcher id created under that key. Eviction is
// LRU; there is no durability requirement, so a restart merely degrades
// idempotency to a plain create.
type Cache struct {
	lru *lru.Cache[string, models.ID]
}

// New builds a Cache with the given capacity. size <= 0 falls back to
// DefaultSize.
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, models.ID](size)
	if err != nil {
		// Only returned by the underlying library for a non-positive size,
		// which is excluded above.
		panic(err)
	}
	return &Cache{lru: c}
}

// Get returns the id recorded under key, if any.
func (c *Cache) Get(key string) (models.ID, bool) {
	return c.lru.Get(key)
}

// Put records id under key, evicting the least-recently-used entry if the
// cache is at capacity.
func (c *Cache) Put(key string, id models.ID) {
	c.lru.Add(key, id)
}
