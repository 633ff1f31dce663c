package vm

import (
	"fmt"
	"io"
)

// Disassemble is the supplemented program-listing feature: walk a
// Reader from its start printing each instruction's bytecode offset,
// mnemonic, and decoded operand. Adapted from the teacher's
// Instruction.String()/printProgram pair, driven here by the opcode
// table's OperandClass instead of a hand-coded switch per mnemonic.
func Disassemble(out io.Writer, r *Reader) {
	r.SetCursor(0)
	for !r.EndOfFile() {
		offset := r.Cursor()
		op, err := r.ReadInstruction()
		if err != nil {
			fmt.Fprintf(out, "%8d  <error reading opcode: %v>\n", offset, err)
			return
		}

		var operand string
		switch op.OperandClass() {
		case OperandI32:
			n, err := r.ReadI32()
			if err != nil {
				fmt.Fprintf(out, "%8d  %s <error: %v>\n", offset, op, err)
				return
			}
			operand = fmt.Sprintf(" %d", n)
		case OperandF64:
			f, err := r.ReadF64()
			if err != nil {
				fmt.Fprintf(out, "%8d  %s <error: %v>\n", offset, op, err)
				return
			}
			operand = fmt.Sprintf(" %g", f)
		case OperandAddressOrLabel:
			a, err := r.ReadUsize()
			if err != nil {
				fmt.Fprintf(out, "%8d  %s <error: %v>\n", offset, op, err)
				return
			}
			operand = fmt.Sprintf(" %d", a)
		case OperandString:
			s, err := r.ReadString()
			if err != nil {
				fmt.Fprintf(out, "%8d  %s <error: %v>\n", offset, op, err)
				return
			}
			operand = fmt.Sprintf(" %q", s)
		}

		fmt.Fprintf(out, "%8d  %s%s\n", offset, op, operand)
	}
}
