package transport

import (
	"context"
	"sync"
)

// TopicCache memoizes topic handles by name for the lifetime of one warm
// process. Topic creation is idempotent by name, so a cached handle is
// always still valid. The cache is injected into the transport rather than
// held as package state so tests get a fresh one per run.
type TopicCache struct {
	mu      sync.Mutex
	handles map[string]string
}

func NewTopicCache() *TopicCache {
	return &TopicCache{handles: make(map[string]string)}
}

// GetOrCreate returns the cached handle for name, calling create on a miss
// and remembering the result.
func (c *TopicCache) GetOrCreate(ctx context.Context, name string, create func(ctx context.Context, name string) (string, error)) (string, error) {
	c.mu.Lock()
	handle, ok := c.handles[name]
	c.mu.Unlock()
	if ok {
		return handle, nil
	}

	handle, err := create(ctx, name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.handles[name] = handle
	c.mu.Unlock()

	return handle, nil
}
