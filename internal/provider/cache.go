package provider

import (
	"fmt"
	"sync"

	"github.com/fumetsu/hibiki/internal/domain"
)

// SearchCache memoises search responses for the life of the process.  Repeat
// searches of the same query must return the same results, and most sessions
// re-run the same search several times while navigating.
type SearchCache struct {
	mu      sync.RWMutex
	entries map[string]*domain.SearchResults
}

// NewSearchCache creates an empty cache
func NewSearchCache() *SearchCache {
	return &SearchCache{entries: make(map[string]*domain.SearchResults)}
}

func cacheKey(params domain.SearchParams) string {
	return fmt.Sprintf("%s|%s|%d|%t", params.Query, params.TranslationType, params.Page, params.AllowNSFW)
}

// Get returns the cached results for identical search params, or nil
func (c *SearchCache) Get(params domain.SearchParams) *domain.SearchResults {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[cacheKey(params)]
}

// Put stores results under the search params
func (c *SearchCache) Put(params domain.SearchParams, results *domain.SearchResults) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(params)] = results
}
