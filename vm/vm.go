package vm

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunState is the engine's three-state machine from spec.md §4.8.
type RunState int

const (
	Running RunState = iota
	Stopped
	Faulted
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Faulted:
		return "faulted"
	default:
		return "?"
	}
}

const maxReadLine = 1 << 20 // 1 MiB, spec.md §6

// VM is the execution engine of spec.md §4.8, wired to the memory and
// register components (C5/C6/C7) and the bytecode reader (C2). One VM
// instance runs one program to completion; it is not reused.
type VM struct {
	id uuid.UUID

	reader *Reader
	sm     *SourceMap

	stack  Stack
	frames FrameStack
	heap   *TypedHeap
	strs   *StringHeap
	regs   Registers

	stdin  *bufio.Reader
	stdout *bufio.Writer

	log *logrus.Entry

	state           RunState
	lastInstruction uint64
	faultErr        error
	faultSpan       Span
	hasFaultSpan    bool
}

// New constructs a VM around already-assembled bytecode and its source
// map. stdin/stdout default to nothing read/discarded if nil is passed;
// the CLI wires os.Stdin/os.Stdout, tests wire buffers.
func New(reader *Reader, sm *SourceMap, stdin io.Reader, stdout io.Writer, logger *logrus.Logger) *VM {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if stdin == nil {
		stdin = bytes.NewReader(nil)
	}
	if stdout == nil {
		stdout = io.Discard
	}
	id := uuid.New()
	v := &VM{
		id:     id,
		reader: reader,
		sm:     sm,
		heap:   newTypedHeap(),
		strs:   newStringHeap(),
		regs:   newRegisters(),
		stdin:  bufio.NewReader(stdin),
		stdout: bufio.NewWriter(stdout),
		log:    logger.WithField("vm", id.String()),
		state:  Running,
	}
	v.log.WithField("bytecode_len", reader.Len()).Debug("vm constructed")
	return v
}

// ID returns the correlation id logged against this VM's traces.
func (v *VM) ID() uuid.UUID { return v.id }

// State, LastInstruction, FaultError and FaultSpan are the
// post-execution query surface the CLI uses to build a diagnostic.
func (v *VM) State() RunState          { return v.state }
func (v *VM) LastInstruction() uint64  { return v.lastInstruction }
func (v *VM) FaultError() error        { return v.faultErr }
func (v *VM) FaultSpan() (Span, bool)  { return v.faultSpan, v.hasFaultSpan }

// Teardown releases every owned resource in the fixed order spec.md §3
// describes: heap, string heap, operand stack, frame stack, error slot,
// source map index.
func (v *VM) Teardown() {
	heapLive, strLive := v.heap.LiveCount(), v.strs.LiveCount()
	v.heap.Teardown()
	v.strs.Teardown()
	v.stack.Truncate(0)
	v.frames = FrameStack{}
	v.regs.Err = nil
	v.sm.teardown()
	v.stdout.Flush()
	v.log.WithFields(logrus.Fields{
		"heap_live_at_teardown":   heapLive,
		"string_live_at_teardown": strLive,
	}).Debug("vm teardown")
}

func (v *VM) fault(instrOffset uint64, err error) {
	v.state = Faulted
	v.faultErr = err
	v.lastInstruction = instrOffset
	if span, ok := v.sm.Find(instrOffset); ok {
		v.faultSpan = span
		v.hasFaultSpan = true
	}
	v.log.WithError(err).WithField("offset", instrOffset).Warn("vm faulted")
}

// Run drives the fetch-decode-execute loop until the engine stops,
// faults, or runs out of bytecode.
func (v *VM) Run() RunState {
	for !v.Step() {
	}
	v.stdout.Flush()
	return v.state
}

// Step runs exactly one fetch-decode-execute cycle and reports whether
// the engine has come to rest (stopped or faulted) as a result. It
// underlies both Run and the --debug single-stepper.
func (v *VM) Step() bool {
	if v.regs.Stop {
		v.state = Stopped
		return true
	}
	if v.reader.EndOfFile() {
		v.state = Stopped
		return true
	}
	last := v.reader.Cursor()
	v.lastInstruction = last

	op, err := v.reader.ReadInstruction()
	if err != nil {
		v.fault(last, err)
		return true
	}
	if err := v.exec(op); err != nil {
		v.fault(last, err)
		return true
	}
	if v.regs.Err != nil {
		v.fault(last, wrapf(ErrRuntimeError, "%s", *v.regs.Err))
		return true
	}
	if v.regs.Stop || v.reader.EndOfFile() {
		v.state = Stopped
		return true
	}
	return false
}

// CodePointer, StackPointer, FramePointer, GlobalPointer and
// StackSnapshot expose just enough VM state for the --debug stepper and
// tests to observe without reaching into unexported fields.
func (v *VM) CodePointer() uint64    { return v.reader.Cursor() }
func (v *VM) StackPointer() int      { return v.stack.Len() }
func (v *VM) FramePointer() uint64   { return v.regs.FramePointer }
func (v *VM) GlobalPointer() uint64  { return v.regs.GlobalPointer }

func (v *VM) StackSnapshot() []Value {
	return append([]Value(nil), v.stack.values...)
}

func (v *VM) popInt() (int32, error) {
	val, err := v.stack.PopAs(KindInteger)
	if err != nil {
		return 0, err
	}
	n, _ := val.Integer()
	return n, nil
}

func (v *VM) popFloat() (float64, error) {
	val, err := v.stack.PopAs(KindFloat)
	if err != nil {
		return 0, err
	}
	f, _ := val.Float()
	return f, nil
}

func (v *VM) popString() (uint64, error) {
	val, err := v.stack.PopAs(KindAddressString)
	if err != nil {
		return 0, err
	}
	addr, _ := val.Address()
	return addr, nil
}

func (v *VM) popAnyAddress() (Value, error) {
	val, err := v.stack.Pop()
	if err != nil {
		return Value{}, err
	}
	if !val.IsAddress() {
		return Value{}, wrapf(ErrTypeMismatch, "expected an address, got %s", val.Kind())
	}
	return val, nil
}

// loadAt / storeAt implement the generic pointer-based load/store family
// (load/loadn/store/storen), valid only for heap and stack addresses
// per spec.md §4.8.
func (v *VM) loadAt(addr Value) (Value, error) {
	switch addr.Kind() {
	case KindAddressHeap:
		return v.heap.Load(addr.addr)
	case KindAddressStack:
		return v.stack.Load(int(addr.addr))
	default:
		return Value{}, wrapf(ErrInvalidOperand, "cannot load through a %s", addr.Kind())
	}
}

func (v *VM) storeAt(addr Value, val Value) error {
	switch addr.Kind() {
	case KindAddressHeap:
		return v.heap.Store(addr.addr, val)
	case KindAddressStack:
		_, err := v.stack.Store(int(addr.addr), val)
		return err
	default:
		return wrapf(ErrInvalidOperand, "cannot store through a %s", addr.Kind())
	}
}

// valuesEqual implements spec.md §4.5: tag-then-content, with
// AddressString compared by underlying byte contents rather than
// address identity.
func (v *VM) valuesEqual(a, b Value) (bool, error) {
	if a.Kind() != b.Kind() {
		return false, nil
	}
	if a.Kind() == KindAddressString {
		ba, err := v.strs.LoadAll(a.addr)
		if err != nil {
			return false, err
		}
		bb, err := v.strs.LoadAll(b.addr)
		if err != nil {
			return false, err
		}
		return bytes.Equal(ba, bb), nil
	}
	return a.Equal(b), nil
}

func floorDivMod(a, b int32) (q, r int32, err error) {
	if b == 0 {
		return 0, 0, wrapf(ErrInvalidOperand, "division by zero")
	}
	q = a / b
	r = a % b
	if r != 0 && (r < 0) != (b < 0) {
		q--
		r += b
	}
	return q, r, nil
}

func boolInt(b bool) Value {
	if b {
		return IntegerValue(1)
	}
	return IntegerValue(0)
}

// exec dispatches one opcode. The opcode byte has already been consumed
// from the reader; handlers that carry an operand read it themselves,
// continuing the same cursor (spec.md §6's "opcode byte followed by
// zero or one operand" framing applies to the reader, not just the
// assembler).
func (v *VM) exec(op Opcode) error {
	switch op {
	case Nop, Debug:
		return nil

	case Stop:
		v.regs.Stop = true
		return nil

	case Start:
		sp := uint64(v.StackPointer())
		v.regs.FramePointer = sp
		v.regs.GlobalPointer = sp
		return nil

	case Err:
		msg, err := v.reader.ReadString()
		if err != nil {
			return err
		}
		s := string(msg)
		v.regs.Err = &s
		return nil

	case Jump:
		addr, err := v.reader.ReadUsize()
		if err != nil {
			return err
		}
		v.reader.SetCursor(addr)
		return nil

	case Jz:
		addr, err := v.reader.ReadUsize()
		if err != nil {
			return err
		}
		n, err := v.popInt()
		if err != nil {
			return err
		}
		if n == 0 {
			v.reader.SetCursor(addr)
		}
		return nil

	case PushA:
		addr, err := v.reader.ReadUsize()
		if err != nil {
			return err
		}
		v.stack.Push(AddressCodeValue(addr))
		return nil

	case Call:
		target, err := v.popAnyAddress()
		if err != nil {
			return err
		}
		if target.Kind() != KindAddressCode {
			return wrapf(ErrTypeMismatch, "call target must be a code address, got %s", target.Kind())
		}
		v.frames.Push(Frame{FramePointer: v.regs.FramePointer, ReturnCodeAddr: v.reader.Cursor()})
		v.regs.FramePointer = uint64(v.StackPointer())
		v.reader.SetCursor(target.addr)
		return nil

	case Return:
		retVal, err := v.stack.Pop()
		if err != nil {
			return err
		}
		frame, err := v.frames.Pop()
		if err != nil {
			return err
		}
		v.stack.Truncate(int(v.regs.FramePointer))
		v.stack.Push(retVal)
		v.regs.FramePointer = frame.FramePointer
		v.reader.SetCursor(frame.ReturnCodeAddr)
		return nil

	case Dup:
		n, err := v.reader.ReadI32()
		if err != nil {
			return err
		}
		return v.dupTop(int(n))

	case DupN:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		return v.dupTop(int(n))

	case Pop:
		n, err := v.reader.ReadI32()
		if err != nil {
			return err
		}
		return v.popDiscard(int(n))

	case PopN:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		return v.popDiscard(int(n))

	case PushI:
		n, err := v.reader.ReadI32()
		if err != nil {
			return err
		}
		v.stack.Push(IntegerValue(n))
		return nil

	case PushN:
		n, err := v.reader.ReadI32()
		if err != nil {
			return err
		}
		// Corrected per spec.md §9: push exactly n zeros.
		for i := int32(0); i < n; i++ {
			v.stack.Push(IntegerValue(0))
		}
		return nil

	case PushF:
		f, err := v.reader.ReadF64()
		if err != nil {
			return err
		}
		v.stack.Push(FloatValue(f))
		return nil

	case PushS:
		bytes, err := v.reader.ReadString()
		if err != nil {
			return err
		}
		base := v.strs.AllocBytes(bytes)
		v.stack.Push(AddressStringValue(base))
		return nil

	case PushG:
		off, err := v.reader.ReadI32()
		if err != nil {
			return err
		}
		return v.pushIndexed(v.regs.GlobalPointer, off)

	case PushL:
		off, err := v.reader.ReadI32()
		if err != nil {
			return err
		}
		return v.pushIndexed(v.regs.FramePointer, off)

	case PushSP:
		v.stack.Push(AddressStackValue(uint64(v.StackPointer())))
		return nil

	case PushFP:
		v.stack.Push(AddressStackValue(v.regs.FramePointer))
		return nil

	case PushGP:
		v.stack.Push(AddressStackValue(v.regs.GlobalPointer))
		return nil

	case Store:
		off, err := v.reader.ReadI32()
		if err != nil {
			return err
		}
		return v.storeGeneric(off)

	case StoreN:
		off, err := v.popInt()
		if err != nil {
			return err
		}
		return v.storeGeneric(off)

	case StoreL:
		off, err := v.reader.ReadI32()
		if err != nil {
			return err
		}
		return v.storeIndexed(v.regs.FramePointer, off)

	case StoreG:
		off, err := v.reader.ReadI32()
		if err != nil {
			return err
		}
		return v.storeIndexed(v.regs.GlobalPointer, off)

	case Load:
		off, err := v.reader.ReadI32()
		if err != nil {
			return err
		}
		return v.loadGeneric(off)

	case LoadN:
		off, err := v.popInt()
		if err != nil {
			return err
		}
		return v.loadGeneric(off)

	case Padd:
		disp, err := v.popInt()
		if err != nil {
			return err
		}
		addr, err := v.popAnyAddress()
		if err != nil {
			return err
		}
		v.stack.Push(addr.WithAddress(addDisplacement(addr.addr, disp)))
		return nil

	case Alloc:
		n, err := v.reader.ReadUsize()
		if err != nil {
			return err
		}
		base := v.heap.Alloc(int(n))
		v.stack.Push(AddressHeapValue(base))
		return nil

	case AllocN:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		if n <= 0 {
			return wrapf(ErrInvalidOperand, "allocn requires a positive size, got %d", n)
		}
		base := v.heap.Alloc(int(n))
		v.stack.Push(AddressHeapValue(base))
		return nil

	case Free:
		val, err := v.stack.PopAs(KindAddressHeap)
		if err != nil {
			return err
		}
		v.heap.Free(val.addr)
		return nil

	case Equal:
		b, err := v.stack.Pop()
		if err != nil {
			return err
		}
		a, err := v.stack.Pop()
		if err != nil {
			return err
		}
		eq, err := v.valuesEqual(a, b)
		if err != nil {
			return err
		}
		v.stack.Push(boolInt(eq))
		return nil

	case Not:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		v.stack.Push(boolInt(n == 0))
		return nil

	case Swap:
		b, err := v.stack.Pop()
		if err != nil {
			return err
		}
		a, err := v.stack.Pop()
		if err != nil {
			return err
		}
		v.stack.Push(b)
		v.stack.Push(a)
		return nil

	case Add, Sub, Mul, Div, Mod, Inf, InfEq, Sup, SupEq:
		return v.intBinary(op)

	case FAdd, FSub, FMul, FDiv, FInf, FInfEq, FSup, FSupEq:
		return v.floatBinary(op)

	case FCos:
		f, err := v.popFloat()
		if err != nil {
			return err
		}
		v.stack.Push(FloatValue(math.Cos(f)))
		return nil

	case FSin:
		f, err := v.popFloat()
		if err != nil {
			return err
		}
		v.stack.Push(FloatValue(math.Sin(f)))
		return nil

	case Concat:
		b, err := v.popString()
		if err != nil {
			return err
		}
		a, err := v.popString()
		if err != nil {
			return err
		}
		ba, err := v.strs.LoadAll(a)
		if err != nil {
			return err
		}
		bb, err := v.strs.LoadAll(b)
		if err != nil {
			return err
		}
		combined := make([]byte, 0, len(ba)+len(bb))
		combined = append(combined, ba...)
		combined = append(combined, bb...)
		base := v.strs.AllocBytes(combined)
		v.stack.Push(AddressStringValue(base))
		return nil

	case Atoi:
		addr, err := v.popString()
		if err != nil {
			return err
		}
		bytes, err := v.strs.LoadAll(addr)
		if err != nil {
			return err
		}
		n, parseErr := strconv.ParseInt(string(bytes), 10, 32)
		if parseErr != nil {
			return wrapf(ErrInvalidOperand, "atoi: %v", parseErr)
		}
		v.stack.Push(IntegerValue(int32(n)))
		return nil

	case Atof:
		addr, err := v.popString()
		if err != nil {
			return err
		}
		bytes, err := v.strs.LoadAll(addr)
		if err != nil {
			return err
		}
		f, parseErr := strconv.ParseFloat(string(bytes), 64)
		if parseErr != nil {
			return wrapf(ErrInvalidOperand, "atof: %v", parseErr)
		}
		v.stack.Push(FloatValue(f))
		return nil

	case Itof:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		v.stack.Push(FloatValue(float64(n)))
		return nil

	case Ftoi:
		f, err := v.popFloat()
		if err != nil {
			return err
		}
		v.stack.Push(IntegerValue(int32(f)))
		return nil

	case Stri:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		base := v.strs.AllocBytes([]byte(strconv.FormatInt(int64(n), 10)))
		v.stack.Push(AddressStringValue(base))
		return nil

	case Strf:
		f, err := v.popFloat()
		if err != nil {
			return err
		}
		base := v.strs.AllocBytes([]byte(strconv.FormatFloat(f, 'g', -1, 64)))
		v.stack.Push(AddressStringValue(base))
		return nil

	case Read:
		line, err := v.readLine()
		if err != nil {
			return err
		}
		base := v.strs.AllocBytes(line)
		v.stack.Push(AddressStringValue(base))
		return nil

	case WriteI:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		fmt.Fprintf(v.stdout, "%d", n)
		return nil

	case WritelnI:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		fmt.Fprintf(v.stdout, "%d\n", n)
		return nil

	case WriteF:
		f, err := v.popFloat()
		if err != nil {
			return err
		}
		fmt.Fprintf(v.stdout, "%s", strconv.FormatFloat(f, 'g', -1, 64))
		return nil

	case WritelnF:
		f, err := v.popFloat()
		if err != nil {
			return err
		}
		fmt.Fprintf(v.stdout, "%s\n", strconv.FormatFloat(f, 'g', -1, 64))
		return nil

	case WriteS:
		addr, err := v.popString()
		if err != nil {
			return err
		}
		bytes, err := v.strs.LoadAll(addr)
		if err != nil {
			return err
		}
		v.stdout.Write(bytes)
		return nil

	case WritelnS:
		addr, err := v.popString()
		if err != nil {
			return err
		}
		bytes, err := v.strs.LoadAll(addr)
		if err != nil {
			return err
		}
		v.stdout.Write(bytes)
		v.stdout.WriteByte('\n')
		return nil

	default:
		return wrapf(ErrInvalidOperand, "unknown opcode %d", op)
	}
}

func (v *VM) dupTop(n int) error {
	if n < 0 {
		return wrapf(ErrInvalidOperand, "dup count must be non-negative, got %d", n)
	}
	l := v.stack.Len()
	if n > l {
		return wrapf(ErrOutOfBounds, "dup %d exceeds stack length %d", n, l)
	}
	for i := 0; i < n; i++ {
		val, err := v.stack.Load(l - n + i)
		if err != nil {
			return err
		}
		v.stack.Push(val)
	}
	return nil
}

func (v *VM) popDiscard(n int) error {
	if n < 0 {
		return wrapf(ErrInvalidOperand, "pop count must be non-negative, got %d", n)
	}
	for i := 0; i < n; i++ {
		if _, err := v.stack.Pop(); err != nil {
			return err
		}
	}
	return nil
}

func (v *VM) pushIndexed(base uint64, offset int32) error {
	idx := addDisplacement(base, offset)
	val, err := v.stack.Load(int(idx))
	if err != nil {
		return err
	}
	v.stack.Push(val)
	return nil
}

func (v *VM) storeIndexed(base uint64, offset int32) error {
	val, err := v.stack.Pop()
	if err != nil {
		return err
	}
	idx := addDisplacement(base, offset)
	_, err = v.stack.Store(int(idx), val)
	return err
}

func (v *VM) storeGeneric(offset int32) error {
	val, err := v.stack.Pop()
	if err != nil {
		return err
	}
	addr, err := v.popAnyAddress()
	if err != nil {
		return err
	}
	return v.storeAt(addr.WithAddress(addDisplacement(addr.addr, offset)), val)
}

func (v *VM) loadGeneric(offset int32) error {
	addr, err := v.popAnyAddress()
	if err != nil {
		return err
	}
	val, err := v.loadAt(addr.WithAddress(addDisplacement(addr.addr, offset)))
	if err != nil {
		return err
	}
	v.stack.Push(val)
	return nil
}

func (v *VM) intBinary(op Opcode) error {
	b, err := v.popInt()
	if err != nil {
		return err
	}
	a, err := v.popInt()
	if err != nil {
		return err
	}
	switch op {
	case Add:
		v.stack.Push(IntegerValue(a + b))
	case Sub:
		v.stack.Push(IntegerValue(a - b))
	case Mul:
		v.stack.Push(IntegerValue(a * b))
	case Div:
		q, _, err := floorDivMod(a, b)
		if err != nil {
			return err
		}
		v.stack.Push(IntegerValue(q))
	case Mod:
		_, r, err := floorDivMod(a, b)
		if err != nil {
			return err
		}
		v.stack.Push(IntegerValue(r))
	case Inf:
		v.stack.Push(boolInt(a < b))
	case InfEq:
		v.stack.Push(boolInt(a <= b))
	case Sup:
		v.stack.Push(boolInt(a > b))
	case SupEq:
		v.stack.Push(boolInt(a >= b))
	}
	return nil
}

func (v *VM) floatBinary(op Opcode) error {
	b, err := v.popFloat()
	if err != nil {
		return err
	}
	a, err := v.popFloat()
	if err != nil {
		return err
	}
	switch op {
	case FAdd:
		v.stack.Push(FloatValue(a + b))
	case FSub:
		v.stack.Push(FloatValue(a - b))
	case FMul:
		v.stack.Push(FloatValue(a * b))
	case FDiv:
		v.stack.Push(FloatValue(a / b))
	case FInf:
		v.stack.Push(boolInt(a < b))
	case FInfEq:
		v.stack.Push(boolInt(a <= b))
	case FSup:
		v.stack.Push(boolInt(a > b))
	case FSupEq:
		v.stack.Push(boolInt(a >= b))
	}
	return nil
}

// readLine implements spec.md §6's `read`: one line from standard
// input, up to 1 MiB, with a trailing "\r\n" or "\n" stripped.
func (v *VM) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := v.stdin.ReadBytes('\n')
		line = append(line, chunk...)
		if len(line) > maxReadLine {
			return nil, wrapf(ErrIO, "input line exceeds %d bytes", maxReadLine)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapf(ErrIO, "reading stdin: %v", err)
		}
		break
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, nil
}
