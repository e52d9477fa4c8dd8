package chain

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AllowanceKey identifies one ERC-20 allowance edge.
type AllowanceKey struct {
	ChainID uint64
	Owner   common.Address
	Spender common.Address
	Token   common.Address
}

// AllowanceEntry is one cached allowance read. Generation increments on
// every local write (a confirmed approval), so callers can tell an
// optimistic figure from a fresh on-chain read of the same value.
type AllowanceEntry struct {
	Amount     *big.Int
	FetchedAt  time.Time
	Generation uint64
}

// AllowanceCache is a read-through cache shared across requests. Entries
// are only ever replaced by a fresh on-chain read or bumped upward after
// an approval we sent ourselves confirmed; nothing decrements them
// speculatively.
type AllowanceCache struct {
	mu      sync.RWMutex
	entries map[AllowanceKey]AllowanceEntry

	now func() time.Time
}

// NewAllowanceCache creates an empty cache.
func NewAllowanceCache() *AllowanceCache {
	return &AllowanceCache{
		entries: make(map[AllowanceKey]AllowanceEntry),
		now:     time.Now,
	}
}

// Get returns the cached entry for key, if any.
func (c *AllowanceCache) Get(key AllowanceKey) (AllowanceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return AllowanceEntry{}, false
	}
	entry.Amount = new(big.Int).Set(entry.Amount)
	return entry, true
}

// Put stores a fresh on-chain read, resetting the entry's generation
// lineage to the observed value.
func (c *AllowanceCache) Put(key AllowanceKey, amt *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.entries[key]
	c.entries[key] = AllowanceEntry{
		Amount:     new(big.Int).Set(amt),
		FetchedAt:  c.now(),
		Generation: prev.Generation,
	}
}

// Bump records an optimistic local write after a confirmed approval,
// incrementing the generation counter.
func (c *AllowanceCache) Bump(key AllowanceKey, amt *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.entries[key]
	c.entries[key] = AllowanceEntry{
		Amount:     new(big.Int).Set(amt),
		FetchedAt:  c.now(),
		Generation: prev.Generation + 1,
	}
}
