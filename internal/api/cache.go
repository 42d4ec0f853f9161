package api

import (
	"context"
	"os"
	"sync"
	"time"
)

// fileBacked is implemented by loaders that read a single file, such as the snapshot stores.
type fileBacked interface {
	Path() string
}

// cachedLoader keeps the last decoded value of a file-backed loader until the file's
// modification time or size changes. Handlers must treat the value as read-only.
type cachedLoader[T any] struct {
	inner Loader[T]
	path  string

	mu      sync.Mutex
	valid   bool
	modTime time.Time
	size    int64
	value   T
}

// withCache wraps l in a cachedLoader when it reads a single file, and returns it unchanged otherwise.
func withCache[T any](l Loader[T]) Loader[T] {
	fb, ok := l.(fileBacked)
	if !ok {
		return l
	}
	return &cachedLoader[T]{inner: l, path: fb.Path()}
}

func (c *cachedLoader[T]) Load(ctx context.Context) (T, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		c.reset()
		return c.inner.Load(ctx)
	}

	c.mu.Lock()
	if c.valid && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		value := c.value
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Unlock()

	value, err := c.inner.Load(ctx)
	if err != nil {
		c.reset()
		return value, err
	}
	// the stat above predates the read, so a write racing the load triggers another read
	c.mu.Lock()
	c.valid, c.modTime, c.size, c.value = true, info.ModTime(), info.Size(), value
	c.mu.Unlock()
	return value, nil
}

func (c *cachedLoader[T]) reset() {
	var zero T
	c.mu.Lock()
	c.valid, c.value = false, zero
	c.mu.Unlock()
}
