package marketdata

import (
	"sync"
	"time"

	"github.com/nquinn721/ai-stock-trader-sub001/models"
)

// PriceCache is the in-memory map from symbol to the latest quote snapshot.
// It is the single source of truth for live price data, decoupled from the
// persisted stock records. Entries live for the process lifetime; the
// cardinality is bounded by the tracked universe so there is no eviction.
//
// Writes for the same symbol are sequenced by the update scheduler; the lock
// only has to make concurrent reads and writes to different keys safe.
type PriceCache struct {
	mu        sync.RWMutex
	snapshots map[string]*QuoteSnapshot
}

// NewPriceCache creates an empty price cache
func NewPriceCache() *PriceCache {
	return &PriceCache{snapshots: make(map[string]*QuoteSnapshot)}
}

// Put overwrites the snapshot for its symbol unconditionally
func (c *PriceCache) Put(snap *QuoteSnapshot) {
	if snap == nil || snap.Symbol == "" {
		return
	}
	c.mu.Lock()
	c.snapshots[snap.Symbol] = snap
	c.mu.Unlock()
}

// Get returns a copy of the latest snapshot for symbol, if one exists
func (c *PriceCache) Get(symbol string) (QuoteSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snapshots[symbol]
	if !ok {
		return QuoteSnapshot{}, false
	}
	return *snap, true
}

// Snapshots returns copies of all cached snapshots
func (c *PriceCache) Snapshots() []QuoteSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]QuoteSnapshot, 0, len(c.snapshots))
	for _, snap := range c.snapshots {
		out = append(out, *snap)
	}
	return out
}

// Len returns the number of cached snapshots
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}

// Enrich merges the cached snapshot fields into the persisted stock record.
// For symbols never successfully fetched the baseline record passes through
// unchanged with HasLiveData false.
func (c *PriceCache) Enrich(stock models.Stock) models.StockQuote {
	quote := models.StockQuote{Stock: stock}

	snap, ok := c.Get(stock.Symbol)
	if !ok {
		return quote
	}

	quote.CurrentPrice = snap.CurrentPrice
	quote.PreviousClose = snap.PreviousClose
	quote.ChangePercent = snap.ChangePercent
	quote.Volume = snap.Volume
	quote.LiveMarketCap = snap.MarketCap
	quote.LastUpdated = snap.LastUpdated.Format(time.RFC3339)
	quote.HasLiveData = true
	return quote
}
