package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressIndexClosestSmaller(t *testing.T) {
	idx := newAddressIndex()
	idx.insert(10, "ten")
	idx.insert(20, "twenty")
	idx.insert(30, "thirty")

	base, val, ok := idx.closestSmaller(25)
	require.True(t, ok)
	require.Equal(t, uint64(20), base)
	require.Equal(t, "twenty", val)

	base, val, ok = idx.closestSmaller(10)
	require.True(t, ok)
	require.Equal(t, uint64(10), base)
	require.Equal(t, "ten", val)

	_, _, ok = idx.closestSmaller(5)
	require.False(t, ok, "closest_smaller must report None when no element is <= query")
}

func TestAddressIndexClosestLarger(t *testing.T) {
	idx := newAddressIndex()
	idx.insert(10, nil)
	idx.insert(20, nil)

	base, _, ok := idx.closestLarger(15)
	require.True(t, ok)
	require.Equal(t, uint64(20), base)

	// closest_larger is the inclusive "smallest key >= query" counterpart
	// to closest_smaller (also inclusive, per TestAddressIndexClosestSmaller
	// above) — both forward to the same underlying tree's Floor/Ceiling,
	// which are inclusive pairs.
	base, _, ok = idx.closestLarger(20)
	require.True(t, ok)
	require.Equal(t, uint64(20), base)

	_, _, ok = idx.closestLarger(21)
	require.False(t, ok, "closest_larger must report None when no element is >= query")
}

func TestAddressIndexRejectsDuplicates(t *testing.T) {
	idx := newAddressIndex()
	require.True(t, idx.insert(1, "a"))
	require.False(t, idx.insert(1, "b"))
	require.Equal(t, 1, idx.size())
}

func TestAddressIndexInOrderIsIncreasing(t *testing.T) {
	idx := newAddressIndex()
	for _, k := range []uint64{50, 10, 40, 20, 30} {
		idx.insert(k, nil)
	}
	idx.delete(40)

	keys := idx.keysInOrder()
	require.Equal(t, []uint64{10, 20, 30, 50}, keys)
	for i := 1; i < len(keys); i++ {
		require.Less(t, keys[i-1], keys[i])
	}
}
