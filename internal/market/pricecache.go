// Package market keeps live prices for the watchlist. A single Writer,
// fed by the exchange ticker stream, publishes immutable snapshots that any
// number of readers load without locking.
package market

import (
	"maps"
	"sync/atomic"
	"time"
)

type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PriceCache struct {
	snap atomic.Pointer[map[string]Quote]
	ttl  time.Duration
	now  func() time.Time
}

// Writer is the only handle that can change a PriceCache.
type Writer struct {
	cache *PriceCache
}

// NewPriceCache returns the cache and its writer. Quotes older than ttl are
// reported as missing; ttl <= 0 keeps quotes forever.
func NewPriceCache(ttl time.Duration) (*PriceCache, *Writer) {
	c := &PriceCache{ttl: ttl, now: time.Now}
	empty := map[string]Quote{}
	c.snap.Store(&empty)
	return c, &Writer{cache: c}
}

// Get returns the latest fresh price for symbol.
func (c *PriceCache) Get(symbol string) (float64, bool) {
	q, ok := (*c.snap.Load())[symbol]
	if !ok || c.stale(q) {
		return 0, false
	}
	return q.Price, true
}

// Snapshot returns a copy of every fresh quote.
func (c *PriceCache) Snapshot() map[string]Quote {
	cur := *c.snap.Load()
	out := make(map[string]Quote, len(cur))
	for s, q := range cur {
		if !c.stale(q) {
			out[s] = q
		}
	}
	return out
}

func (c *PriceCache) stale(q Quote) bool {
	return c.ttl > 0 && c.now().Sub(q.UpdatedAt) > c.ttl
}

// Update publishes new prices. Non-positive prices are ignored.
func (w *Writer) Update(quotes ...Quote) {
	cur := *w.cache.snap.Load()
	next := maps.Clone(cur)
	changed := false
	for _, q := range quotes {
		if q.Price <= 0 || q.Symbol == "" {
			continue
		}
		if q.UpdatedAt.IsZero() {
			q.UpdatedAt = w.cache.now()
		}
		next[q.Symbol] = q
		changed = true
	}
	if changed {
		w.cache.snap.Store(&next)
	}
}
