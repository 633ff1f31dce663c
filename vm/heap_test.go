package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypedHeapAllocStoreLoadFree(t *testing.T) {
	h := newTypedHeap()
	base := h.Alloc(4)
	require.NotZero(t, base)

	for i := uint64(0); i < 4; i++ {
		require.NoError(t, h.Store(base+i, IntegerValue(int32(i*10))))
	}
	for i := uint64(0); i < 4; i++ {
		v, err := h.Load(base + i)
		require.NoError(t, err)
		n, ok := v.Integer()
		require.True(t, ok)
		require.Equal(t, int32(i*10), n)
	}

	h.Free(base)
	_, err := h.Load(base)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestTypedHeapDisjointAllocations(t *testing.T) {
	h := newTypedHeap()
	a := h.Alloc(3)
	b := h.Alloc(3)
	require.NotEqual(t, a, b)
	require.NoError(t, h.Store(a+2, IntegerValue(1)))
	require.NoError(t, h.Store(b, IntegerValue(2)))

	va, err := h.Load(a + 2)
	require.NoError(t, err)
	n, _ := va.Integer()
	require.Equal(t, int32(1), n)
}

func TestStringHeapLoadAll(t *testing.T) {
	sh := newStringHeap()
	base := sh.AllocBytes([]byte("hello"))

	all, err := sh.LoadAll(base)
	require.NoError(t, err)
	require.Equal(t, "hello", string(all))

	tail, err := sh.LoadAll(base + 2)
	require.NoError(t, err)
	require.Equal(t, "llo", string(tail))
}

func TestHeapFreeNonBaseIsNoOp(t *testing.T) {
	h := newTypedHeap()
	base := h.Alloc(4)
	h.Free(base + 1)
	_, err := h.Load(base)
	require.NoError(t, err, "free through a non-base address must be a silent no-op")
}

func TestHeapFreeZeroIsNoOp(t *testing.T) {
	h := newTypedHeap()
	h.Free(0)
}

func TestHeapLiveCountAndTeardown(t *testing.T) {
	h := newTypedHeap()
	h.Alloc(1)
	h.Alloc(1)
	require.Equal(t, 2, h.LiveCount())
	h.Teardown()
	require.Equal(t, 0, h.LiveCount())
}
