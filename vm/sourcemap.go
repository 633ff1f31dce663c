package vm

// Position is a zero-based text position; diagnostics print one-based
// (spec.md §3).
type Position struct {
	Line   int
	Col    int
	Offset int
}

// Span is an instruction's source-text extent, keyed by the bytecode
// offset of the instruction it describes (spec.md §3, §4.3).
type Span struct {
	InstructionOffset uint64
	Start             Position
	End               Position
}

// SourceMap is the ordered bytecode-offset -> Span mapping from
// spec.md §4.3, used solely by the diagnostic path. It reuses
// addressIndex: an instruction offset is just another integer key to
// look up by closest-smaller.
type SourceMap struct {
	idx *addressIndex

	pendingOffset uint64
	pendingStart  Position
	pending       bool
}

func newSourceMap() *SourceMap {
	return &SourceMap{idx: newAddressIndex()}
}

// Begin records the start of an instruction at the given bytecode offset
// and source position. Must be paired with End.
func (sm *SourceMap) Begin(offset uint64, start Position) {
	sm.pendingOffset = offset
	sm.pendingStart = start
	sm.pending = true
}

// End closes the instruction opened by Begin and inserts its span.
func (sm *SourceMap) End(end Position) {
	if !sm.pending {
		return
	}
	sm.idx.insert(sm.pendingOffset, Span{
		InstructionOffset: sm.pendingOffset,
		Start:             sm.pendingStart,
		End:               end,
	})
	sm.pending = false
}

// Find returns the span whose instruction offset is the greatest value
// <= offset: the instruction currently executing when a fault is raised
// (the cursor points past it by then).
func (sm *SourceMap) Find(offset uint64) (Span, bool) {
	_, value, found := sm.idx.closestSmaller(offset)
	if !found {
		return Span{}, false
	}
	return value.(Span), true
}

func (sm *SourceMap) Len() int {
	return sm.idx.size()
}

// teardown releases the underlying index, matching spec.md §3's fixed
// teardown order (heap, string heap, operand stack, frame stack, error
// slot, source-map index).
func (sm *SourceMap) teardown() {
	sm.idx = newAddressIndex()
	sm.pending = false
}
