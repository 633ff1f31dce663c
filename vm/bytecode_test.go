package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTripScalars(t *testing.T) {
	w := NewWriter()
	w.WriteInstruction(PushI)
	w.WriteI32(-42)
	w.WriteF64(3.5)
	w.WriteUsize(1 << 40)
	w.WriteString([]byte("hello"))

	r := w.IntoReader()

	op, err := r.ReadInstruction()
	require.NoError(t, err)
	require.Equal(t, PushI, op)

	n, err := r.ReadI32()
	require.NoError(t, err)
	require.Equal(t, int32(-42), n)

	f, err := r.ReadF64()
	require.NoError(t, err)
	require.Equal(t, 3.5, f)

	u, err := r.ReadUsize()
	require.NoError(t, err)
	require.Equal(t, uint64(1<<40), u)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello", string(s))

	require.True(t, r.EndOfFile())
}

func TestReaderOutOfBoundsOnShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	_, err := r.ReadI32()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestWriterSeekPatchesInPlace(t *testing.T) {
	w := NewWriter()
	w.WriteInstruction(Jump)
	patchAt := w.Len()
	w.WriteUsize(0)
	w.WriteInstruction(Stop)

	w.Seek(patchAt)
	w.WriteUsize(999)
	w.SeekEnd()
	w.WriteInstruction(Nop)

	r := w.IntoReader()
	_, _ = r.ReadInstruction()
	addr, err := r.ReadUsize()
	require.NoError(t, err)
	require.Equal(t, uint64(999), addr)
}

func TestSourceMapFindIsClosestSmallerAndMonotonic(t *testing.T) {
	sm := newSourceMap()
	sm.Begin(0, Position{Line: 0, Col: 0, Offset: 0})
	sm.End(Position{Line: 0, Col: 5, Offset: 5})
	sm.Begin(1, Position{Line: 1, Col: 0, Offset: 6})
	sm.End(Position{Line: 1, Col: 5, Offset: 11})

	require.Equal(t, 2, sm.Len())

	span, ok := sm.Find(1)
	require.True(t, ok)
	require.Equal(t, uint64(1), span.InstructionOffset)

	span, ok = sm.Find(0)
	require.True(t, ok)
	require.Equal(t, uint64(0), span.InstructionOffset)

	span, ok = sm.Find(5)
	require.True(t, ok)
	require.Equal(t, uint64(1), span.InstructionOffset)

	keys := sm.idx.keysInOrder()
	for i := 1; i < len(keys); i++ {
		require.LessOrEqual(t, keys[i-1], keys[i])
	}
}
