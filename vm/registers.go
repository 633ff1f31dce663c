package vm

// Registers holds the VM's plain register fields (spec.md §3, §4.7).
// code_pointer and stack_pointer are derived views layered on top of the
// bytecode reader's cursor and the operand stack's length respectively;
// they live on VM (see vm.go's CodePointer/StackPointer) rather than
// here, since deriving them requires access to the reader and stack.
type Registers struct {
	FramePointer  uint64
	GlobalPointer uint64
	Stop          bool
	// Err owns its message bytes; released on teardown by simply letting
	// the pointer go, the same "scoped ownership" spec.md §5 describes
	// for natively-GC'd languages.
	Err *string
}

func newRegisters() Registers {
	return Registers{}
}

// SetStackPointer is the foreign-boundary-shaped setter from spec.md §6 /
// §9's open question: the reference implementation silently no-ops here,
// which lets callers mistake a failed write for a success. This rewrite
// rejects the call instead, per SPEC_FULL.md's declared resolution.
func (r *Registers) SetStackPointer(uint64) error {
	return wrapf(ErrInvalidOperand, "stack pointer cannot be set directly; push/pop to change stack length")
}
