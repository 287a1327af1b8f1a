package cache

import (
	"sync"
	"time"

	"github.com/epeers/topchanges/internal/models"
)

// MemoryCache holds query results derived from a read-only store. Every
// entry is tagged with the store version it was computed against; a lookup
// with a different version misses, so rebuilding the store invalidates
// everything without an explicit flush.
type MemoryCache struct {
	lastPrices lastPriceEntry
	watchlists map[string]watchlistEntry
	priceMu    sync.RWMutex
	watchMu    sync.RWMutex
	ttl        time.Duration
}

type lastPriceEntry struct {
	prices    map[string]float64
	version   string
	fetchedAt time.Time
}

type watchlistEntry struct {
	matches   []models.InvestorMatch
	warnings  []models.Warning
	version   string
	fetchedAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		watchlists: make(map[string]watchlistEntry),
		ttl:        ttl,
	}
}

func (c *MemoryCache) fresh(version, entryVersion string, fetchedAt time.Time) bool {
	if version != entryVersion {
		return false
	}
	return c.ttl <= 0 || time.Since(fetchedAt) <= c.ttl
}

// GetLastPrices retrieves the cached last-price map for a store version
func (c *MemoryCache) GetLastPrices(version string) (map[string]float64, bool) {
	c.priceMu.RLock()
	defer c.priceMu.RUnlock()

	e := c.lastPrices
	if e.prices == nil || !c.fresh(version, e.version, e.fetchedAt) {
		return nil, false
	}
	return e.prices, true
}

// SetLastPrices caches the last-price map
func (c *MemoryCache) SetLastPrices(version string, prices map[string]float64) {
	c.priceMu.Lock()
	defer c.priceMu.Unlock()

	c.lastPrices = lastPriceEntry{
		prices:    prices,
		version:   version,
		fetchedAt: time.Now(),
	}
}

// GetWatchlist retrieves a cached watchlist resolution
func (c *MemoryCache) GetWatchlist(name, version string) ([]models.InvestorMatch, []models.Warning, bool) {
	c.watchMu.RLock()
	defer c.watchMu.RUnlock()

	e, exists := c.watchlists[name]
	if !exists || !c.fresh(version, e.version, e.fetchedAt) {
		return nil, nil, false
	}
	return e.matches, e.warnings, true
}

// SetWatchlist caches a watchlist resolution
func (c *MemoryCache) SetWatchlist(name, version string, matches []models.InvestorMatch, warnings []models.Warning) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	c.watchlists[name] = watchlistEntry{
		matches:   matches,
		warnings:  warnings,
		version:   version,
		fetchedAt: time.Now(),
	}
}

// InvalidateWatchlist removes one watchlist from the cache
func (c *MemoryCache) InvalidateWatchlist(name string) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	delete(c.watchlists, name)
}

// Clear removes all cached data
func (c *MemoryCache) Clear() {
	c.priceMu.Lock()
	c.lastPrices = lastPriceEntry{}
	c.priceMu.Unlock()

	c.watchMu.Lock()
	c.watchlists = make(map[string]watchlistEntry)
	c.watchMu.Unlock()
}
