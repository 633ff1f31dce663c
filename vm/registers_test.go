package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetStackPointerIsRejected(t *testing.T) {
	var r Registers
	err := r.SetStackPointer(5)
	require.ErrorIs(t, err, ErrInvalidOperand)
}
