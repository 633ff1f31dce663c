package vm

import "fmt"

// Kind is the runtime discriminator carried by every Value. Instructions
// that dereference an address require the operand's Kind to match.
type Kind int

const (
	KindNone Kind = iota
	KindInteger
	KindFloat
	KindAddressHeap
	KindAddressString
	KindAddressCode
	KindAddressStack
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindAddressHeap:
		return "heap-address"
	case KindAddressString:
		return "string-address"
	case KindAddressCode:
		return "code-address"
	case KindAddressStack:
		return "stack-address"
	default:
		return "?unknown-kind?"
	}
}

// Value is a tagged union over the variants in spec.md §3. None never
// appears on the stack; it only exists to let the foreign boundary say
// "no value".
type Value struct {
	kind Kind
	i    int32
	f    float64
	addr uint64
}

func NoneValue() Value                    { return Value{kind: KindNone} }
func IntegerValue(i int32) Value          { return Value{kind: KindInteger, i: i} }
func FloatValue(f float64) Value          { return Value{kind: KindFloat, f: f} }
func AddressHeapValue(a uint64) Value     { return Value{kind: KindAddressHeap, addr: a} }
func AddressStringValue(a uint64) Value   { return Value{kind: KindAddressString, addr: a} }
func AddressCodeValue(a uint64) Value     { return Value{kind: KindAddressCode, addr: a} }
func AddressStackValue(a uint64) Value    { return Value{kind: KindAddressStack, addr: a} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsAddress() bool {
	switch v.kind {
	case KindAddressHeap, KindAddressString, KindAddressCode, KindAddressStack:
		return true
	default:
		return false
	}
}

// Integer returns the value's integer payload and whether the tag matched.
func (v Value) Integer() (int32, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.i, true
}

func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

// Address returns the address payload for any of the four address kinds.
func (v Value) Address() (uint64, bool) {
	if !v.IsAddress() {
		return 0, false
	}
	return v.addr, true
}

// WithAddress returns a copy of v with the same Kind but a displaced
// address. Only valid to call on address-kind values.
func (v Value) WithAddress(addr uint64) Value {
	v.addr = addr
	return v
}

// Equal is tag-then-content equality (spec.md §4.5). Every address kind,
// AddressString included, compares by address here; comparing
// AddressString by string heap contents is done by VM.valuesEqual, which
// calls this for every other tag and special-cases KindAddressString
// itself.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindInteger:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	default:
		return v.addr == other.addr
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "none"
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindAddressHeap:
		return fmt.Sprintf("heap@%d", v.addr)
	case KindAddressString:
		return fmt.Sprintf("str@%d", v.addr)
	case KindAddressCode:
		return fmt.Sprintf("code@%d", v.addr)
	case KindAddressStack:
		return fmt.Sprintf("stack@%d", v.addr)
	default:
		return "?"
	}
}

// addDisplacement applies a signed offset to an unsigned address with
// wrapping arithmetic, per spec.md §4.6.
func addDisplacement(addr uint64, disp int32) uint64 {
	return uint64(int64(addr) + int64(disp))
}
