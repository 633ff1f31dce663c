package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueEqualTagThenContent(t *testing.T) {
	require.True(t, IntegerValue(5).Equal(IntegerValue(5)))
	require.False(t, IntegerValue(5).Equal(IntegerValue(6)))
	require.False(t, IntegerValue(5).Equal(FloatValue(5)), "mixed tags compare false, not error")
	require.True(t, AddressHeapValue(3).Equal(AddressHeapValue(3)))
	require.False(t, AddressHeapValue(3).Equal(AddressHeapValue(4)))
}

func TestAddDisplacementWraps(t *testing.T) {
	require.Equal(t, uint64(15), addDisplacement(10, 5))
	require.Equal(t, uint64(5), addDisplacement(10, -5))
	require.Equal(t, ^uint64(0), addDisplacement(0, -1))
}

func TestValueWithAddress(t *testing.T) {
	v := AddressStackValue(10)
	moved := v.WithAddress(20)
	require.Equal(t, KindAddressStack, moved.Kind())
	addr, ok := moved.Address()
	require.True(t, ok)
	require.Equal(t, uint64(20), addr)
}
