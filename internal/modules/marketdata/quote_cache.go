package marketdata

import (
	"fmt"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// QuoteCache keeps the latest quote per instrument in memory. The snapshot is
// persisted with msgpack on shutdown and reloaded on start so valuation works
// immediately after a restart, before any DB round trips.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewQuoteCache creates an empty cache.
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{quotes: make(map[string]Quote)}
}

func cacheKey(symbol, exchange string) string {
	return symbol + ":" + exchange
}

// Get returns the cached quote, if any.
func (c *QuoteCache) Get(symbol, exchange string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[cacheKey(symbol, exchange)]
	return q, ok
}

// Set stores a quote.
func (c *QuoteCache) Set(q Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[cacheKey(q.Symbol, string(q.Exchange))] = q
}

// Invalidate drops one instrument's entry.
func (c *QuoteCache) Invalidate(symbol, exchange string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.quotes, cacheKey(symbol, exchange))
}

// Len returns the number of cached quotes.
func (c *QuoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}

// SaveSnapshot writes the cache to disk as msgpack.
func (c *QuoteCache) SaveSnapshot(path string) error {
	c.mu.RLock()
	snapshot := make(map[string]Quote, len(c.quotes))
	for k, v := range c.quotes {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	data, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode quote snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write quote snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot restores the cache from disk. A missing file is not an error.
func (c *QuoteCache) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read quote snapshot: %w", err)
	}

	var snapshot map[string]Quote
	if err := msgpack.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to decode quote snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range snapshot {
		c.quotes[k] = v
	}
	return nil
}
