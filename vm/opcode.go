package vm

// Opcode is a single byte indexing the opcode table (spec.md §6). The
// numeric assignment is positional: Concat is 0, StoreN is the last.
// New implementations seeking compatibility must keep this order.
type Opcode byte

const (
	Concat Opcode = iota
	Jump
	Jz
	PushA
	Call
	Return
	Start
	Nop
	Stop
	Err
	Atoi
	Atof
	Itof
	Ftoi
	Stri
	Strf
	Dup
	DupN
	FAdd
	FSub
	FMul
	FDiv
	FInf
	FInfEq
	FSup
	FSupEq
	FCos
	FSin
	Alloc
	AllocN
	Free
	Equal
	Add
	Sub
	Mul
	Div
	Mod
	Inf
	InfEq
	Sup
	SupEq
	Not
	Load
	LoadN
	Swap
	Debug
	WriteI
	WritelnI
	WriteF
	WritelnF
	WriteS
	WritelnS
	Read
	Padd
	Pop
	PopN
	PushI
	PushN
	PushF
	PushS
	PushG
	PushL
	PushSP
	PushFP
	PushGP
	Store
	StoreL
	StoreG
	StoreN

	numOpcodes
)

// OperandClass is the shape of the operand (if any) an opcode expects,
// both in the textual assembly and in the bytecode stream (spec.md §4.4,
// §6).
type OperandClass int

const (
	OperandNone OperandClass = iota
	OperandI32
	OperandF64
	OperandAddressOrLabel
	OperandString
)

var (
	// mnemonicToOpcode maps the lowercase textual mnemonic to its Opcode.
	// Built once from opcodeNames via init(), mirroring the teacher's
	// strToInstrMap/instrToStrMap pattern.
	mnemonicToOpcode map[string]Opcode
	opcodeToMnemonic [numOpcodes]string
	opcodeOperand    [numOpcodes]OperandClass
)

// opcodeNames gives the canonical lowercase spelling for every opcode, in
// declaration order. The spec's one divergent spelling ("stroeg" for
// StoreG) is not reproduced here: SPEC_FULL.md declares the normalized
// spelling ("storeg") as the resolution to that open question.
var opcodeNames = [numOpcodes]string{
	Concat:   "concat",
	Jump:     "jump",
	Jz:       "jz",
	PushA:    "pusha",
	Call:     "call",
	Return:   "return",
	Start:    "start",
	Nop:      "nop",
	Stop:     "stop",
	Err:      "err",
	Atoi:     "atoi",
	Atof:     "atof",
	Itof:     "itof",
	Ftoi:     "ftoi",
	Stri:     "stri",
	Strf:     "strf",
	Dup:      "dup",
	DupN:     "dupn",
	FAdd:     "fadd",
	FSub:     "fsub",
	FMul:     "fmul",
	FDiv:     "fdiv",
	FInf:     "finf",
	FInfEq:   "finfeq",
	FSup:     "fsup",
	FSupEq:   "fsupeq",
	FCos:     "fcos",
	FSin:     "fsin",
	Alloc:    "alloc",
	AllocN:   "allocn",
	Free:     "free",
	Equal:    "equal",
	Add:      "add",
	Sub:      "sub",
	Mul:      "mul",
	Div:      "div",
	Mod:      "mod",
	Inf:      "inf",
	InfEq:    "infeq",
	Sup:      "sup",
	SupEq:    "supeq",
	Not:      "not",
	Load:     "load",
	LoadN:    "loadn",
	Swap:     "swap",
	Debug:    "debug",
	WriteI:   "writei",
	WritelnI: "writelni",
	WriteF:   "writef",
	WritelnF: "writelnf",
	WriteS:   "writes",
	WritelnS: "writelns",
	Read:     "read",
	Padd:     "padd",
	Pop:      "pop",
	PopN:     "popn",
	PushI:    "pushi",
	PushN:    "pushn",
	PushF:    "pushf",
	PushS:    "pushs",
	PushG:    "pushg",
	PushL:    "pushl",
	PushSP:   "pushsp",
	PushFP:   "pushfp",
	PushGP:   "pushgp",
	Store:    "store",
	StoreL:   "storel",
	StoreG:   "storeg",
	StoreN:   "storen",
}

// opcodeOperandClasses mirrors spec.md §4.4's five operand classes.
var opcodeOperandClasses = [numOpcodes]OperandClass{
	Dup:    OperandI32,
	Load:   OperandI32,
	Pop:    OperandI32,
	PushI:  OperandI32,
	PushN:  OperandI32,
	PushG:  OperandI32,
	PushL:  OperandI32,
	Store:  OperandI32,
	StoreL: OperandI32,
	StoreG: OperandI32,

	PushF: OperandF64,

	Jump:  OperandAddressOrLabel,
	Jz:    OperandAddressOrLabel,
	PushA: OperandAddressOrLabel,
	Alloc: OperandAddressOrLabel,

	PushS: OperandString,
	Err:   OperandString,
}

func init() {
	mnemonicToOpcode = make(map[string]Opcode, numOpcodes)
	for op := Opcode(0); op < numOpcodes; op++ {
		name := opcodeNames[op]
		mnemonicToOpcode[name] = op
		opcodeToMnemonic[op] = name
		opcodeOperand[op] = opcodeOperandClasses[op]
	}
}

func (op Opcode) String() string {
	if op < numOpcodes {
		return opcodeToMnemonic[op]
	}
	return "?unknown?"
}

func (op Opcode) OperandClass() OperandClass {
	if op < numOpcodes {
		return opcodeOperand[op]
	}
	return OperandNone
}

func lookupMnemonic(name string) (Opcode, bool) {
	op, ok := mnemonicToOpcode[name]
	return op, ok
}
