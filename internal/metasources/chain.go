package metasources

import (
	"sync"
)

// Chain manages metadata sources in a fixed fallback order. The resolver
// walks the chain front to back for every bibliography entry, so the order
// sources are registered in is the order stages are attempted in.
// Registration order is preserved regardless of which identifiers an entry
// carries; determinism of the provenance trail depends on it.
type Chain struct {
	mu      sync.RWMutex
	order   []string
	sources map[string]MetadataSource
}

// NewChain creates a new empty source chain.
func NewChain() *Chain {
	return &Chain{
		sources: make(map[string]MetadataSource),
	}
}

// Register appends a source to the chain. If a source with the same name
// was already registered, it is replaced in place and keeps its position.
// This method is thread-safe.
func (c *Chain) Register(source MetadataSource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := source.Name()
	if _, ok := c.sources[name]; !ok {
		c.order = append(c.order, name)
	}
	c.sources[name] = source
}

// Get returns a source by name, or nil if not found.
// This method is thread-safe.
func (c *Chain) Get(name string) MetadataSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sources[name]
}

// Stages returns all registered sources in registration order.
// The returned slice is a snapshot and is safe to iterate even if
// sources are registered concurrently.
// This method is thread-safe.
func (c *Chain) Stages() []MetadataSource {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stages := make([]MetadataSource, 0, len(c.order))
	for _, name := range c.order {
		stages = append(stages, c.sources[name])
	}
	return stages
}

// EnabledStages returns only enabled sources, in registration order.
// This method is thread-safe.
func (c *Chain) EnabledStages() []MetadataSource {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stages := make([]MetadataSource, 0, len(c.order))
	for _, name := range c.order {
		if source := c.sources[name]; source.IsEnabled() {
			stages = append(stages, source)
		}
	}
	return stages
}

// Enumerator returns the first enabled source that can enumerate citation
// relationships, or nil if none can. Deep analysis degrades to a skipped
// graph expansion when this returns nil.
func (c *Chain) Enumerator() CitationEnumerator {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, name := range c.order {
		source := c.sources[name]
		if !source.IsEnabled() {
			continue
		}
		if enum, ok := source.(CitationEnumerator); ok {
			return enum
		}
	}
	return nil
}
