package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() AllowanceKey {
	return AllowanceKey{
		ChainID: 1,
		Owner:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Spender: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Token:   common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
}

func TestAllowanceCacheMiss(t *testing.T) {
	cache := NewAllowanceCache()
	_, ok := cache.Get(testKey())
	assert.False(t, ok)
}

func TestAllowanceCachePutAndGet(t *testing.T) {
	cache := NewAllowanceCache()
	key := testKey()

	cache.Put(key, big.NewInt(500))

	entry, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, "500", entry.Amount.String())
	assert.Equal(t, uint64(0), entry.Generation)
	assert.False(t, entry.FetchedAt.IsZero())
}

func TestAllowanceCacheBumpIncrementsGeneration(t *testing.T) {
	cache := NewAllowanceCache()
	key := testKey()

	cache.Put(key, big.NewInt(0))
	cache.Bump(key, MaxApproval())

	entry, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, uint64(1), entry.Generation)
	assert.Equal(t, 256, entry.Amount.BitLen())

	// A later fresh read keeps the lineage but not the counter bump.
	cache.Put(key, big.NewInt(42))
	entry, _ = cache.Get(key)
	assert.Equal(t, uint64(1), entry.Generation)
	assert.Equal(t, "42", entry.Amount.String())
}

func TestAllowanceCacheGetReturnsCopy(t *testing.T) {
	cache := NewAllowanceCache()
	key := testKey()

	cache.Put(key, big.NewInt(100))
	entry, _ := cache.Get(key)
	entry.Amount.SetInt64(0)

	again, _ := cache.Get(key)
	assert.Equal(t, "100", again.Amount.String())
}
