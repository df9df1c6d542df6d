package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by a cache layer that has neither the key nor a fallback.
var ErrCacheMiss = errors.New("cache miss")

// Fetcher retrieves values by key. Cache layers implement it and take another Fetcher as
// their fallback, so layers chain down to a source of truth.
type Fetcher[K comparable, V any] interface {
	Fetch(ctx context.Context, key K) (V, error)
	Close() error
}

// Invalidator is implemented by layers that can drop a key.
type Invalidator[K comparable] interface {
	Invalidate(ctx context.Context, key K) error
}

// FetcherFunc adapts a function into a Fetcher with a no-op Close.
type FetcherFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Fetch calls f.
func (f FetcherFunc[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	return f(ctx, key)
}

// Close is a no-op.
func (f FetcherFunc[K, V]) Close() error { return nil }
