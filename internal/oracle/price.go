// Package oracle holds the price-feed boundary: validated quotes from the
// external oracle collaborator and the pure calculator that turns quotes into
// collateral values and collateralization ratios.
package oracle

import (
	"errors"
	"fmt"
)

var (
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrStalePrice        = errors.New("stale price")
)

// PriceQuote is one validated observation for a collateral denomination.
// Price is in quote units scaled by 10^DecimalExponent; Timestamp is the
// oracle publish time in microseconds.
type PriceQuote struct {
	Denom           string
	Price           uint64
	DecimalExponent uint8
	Confidence      uint64
	Timestamp       int64
}

const (
	// MaxPriceAgeMicros bounds how old a quote may be relative to the
	// operation consuming it (60s).
	MaxPriceAgeMicros = 60_000_000

	// MaxConfidenceBP is the widest acceptable confidence interval,
	// expressed in basis points of the price (2%).
	MaxConfidenceBP = 200
)

// Validate checks a quote for basic sanity: a positive price and a
// confidence interval within bounds. Staleness is checked separately against
// the consuming operation's timestamp (the core never reads the wall clock).
func Validate(q PriceQuote) error {
	if q.Denom == "" {
		return fmt.Errorf("%w: empty denom", ErrOracleUnavailable)
	}
	if q.Price == 0 {
		return fmt.Errorf("%w: zero price for %s", ErrOracleUnavailable, q.Denom)
	}
	if q.Confidence > q.Price/10_000*MaxConfidenceBP {
		return fmt.Errorf("%w: confidence %d too wide for price %d (%s)",
			ErrOracleUnavailable, q.Confidence, q.Price, q.Denom)
	}
	return nil
}

// ValidateFreshness rejects quotes older than MaxPriceAgeMicros relative to
// the given operation timestamp.
func ValidateFreshness(q PriceQuote, opTimestamp int64) error {
	if opTimestamp-q.Timestamp > MaxPriceAgeMicros {
		return fmt.Errorf("%w: quote for %s is %dus old",
			ErrStalePrice, q.Denom, opTimestamp-q.Timestamp)
	}
	return nil
}

// Cache holds the latest validated quote per denomination. It is only
// mutated by the single-threaded core, so no locking.
type Cache struct {
	quotes map[string]PriceQuote
}

func NewCache() *Cache {
	return &Cache{quotes: make(map[string]PriceQuote)}
}

// Update stores a quote after validation. Older quotes (by timestamp) are
// silently ignored — price updates tolerate reordering.
func (c *Cache) Update(q PriceQuote) error {
	if err := Validate(q); err != nil {
		return err
	}
	if prev, ok := c.quotes[q.Denom]; ok && q.Timestamp <= prev.Timestamp {
		return nil
	}
	c.quotes[q.Denom] = q
	return nil
}

// Get returns the latest quote for denom, or ErrOracleUnavailable if no
// quote has been seen yet.
func (c *Cache) Get(denom string) (PriceQuote, error) {
	q, ok := c.quotes[denom]
	if !ok {
		return PriceQuote{}, fmt.Errorf("%w: no quote for %s", ErrOracleUnavailable, denom)
	}
	return q, nil
}

// GetFresh returns the latest quote for denom, additionally enforcing
// freshness against the operation timestamp.
func (c *Cache) GetFresh(denom string, opTimestamp int64) (PriceQuote, error) {
	q, err := c.Get(denom)
	if err != nil {
		return PriceQuote{}, err
	}
	if err := ValidateFreshness(q, opTimestamp); err != nil {
		return PriceQuote{}, err
	}
	return q, nil
}

// Snapshot returns a copy of all cached quotes, for state snapshots.
func (c *Cache) Snapshot() map[string]PriceQuote {
	out := make(map[string]PriceQuote, len(c.quotes))
	for denom, q := range c.quotes {
		out[denom] = q
	}
	return out
}

// Restore replaces the cache contents from a snapshot.
func (c *Cache) Restore(quotes map[string]PriceQuote) {
	c.quotes = make(map[string]PriceQuote, len(quotes))
	for denom, q := range quotes {
		c.quotes[denom] = q
	}
}
