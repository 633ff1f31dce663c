package vm

// heapSlice is one owned, contiguous allocation. Both the typed heap and
// the string heap are "a set of owned slices keyed by base address" per
// spec.md §3 — generic over the element type lets one implementation
// serve both (Value cells for the typed heap, bytes for the string heap)
// instead of duplicating alloc/free/load/store/load-all twice.
type heapSlice[T any] struct {
	data []T
}

// genericHeap is the typed-heap/string-heap primitive from spec.md §4.6:
// an addressIndex of owned slices, addressed by the base's integer value,
// resolved by closest-smaller so any address within [base, base+len) maps
// back to its owning slice.
type genericHeap[T any] struct {
	idx *addressIndex
	// nextAddr is the next base to hand out. Starts at 1 so that 0 stays
	// a reserved "null" address, matching free's "silent no-op when addr
	// is zero" rule.
	nextAddr uint64
}

func newGenericHeap[T any]() *genericHeap[T] {
	return &genericHeap[T]{idx: newAddressIndex(), nextAddr: 1}
}

// allocWith adopts an existing slice (used by `read`, which hands the
// string heap a buffer it already owns) and returns its fresh base.
func (h *genericHeap[T]) allocWith(data []T) uint64 {
	base := h.nextAddr
	h.nextAddr += uint64(len(data)) + 1
	h.idx.insert(base, &heapSlice[T]{data: data})
	return base
}

func (h *genericHeap[T]) alloc(n int) uint64 {
	return h.allocWith(make([]T, n))
}

// free releases the slice whose base exactly equals addr. A zero address
// or an address that isn't a known base is a silent no-op, per
// spec.md §4.6.
func (h *genericHeap[T]) free(addr uint64) {
	if addr == 0 {
		return
	}
	base, _, ok := h.idx.closestSmaller(addr)
	if !ok || base != addr {
		return
	}
	h.idx.delete(addr)
}

func (h *genericHeap[T]) resolve(addr uint64) (*heapSlice[T], uint64, bool) {
	base, value, ok := h.idx.closestSmaller(addr)
	if !ok {
		return nil, 0, false
	}
	slice := value.(*heapSlice[T])
	offset := addr - base
	if offset >= uint64(len(slice.data)) {
		return nil, 0, false
	}
	return slice, offset, true
}

func (h *genericHeap[T]) load(addr uint64) (T, error) {
	slice, offset, ok := h.resolve(addr)
	if !ok {
		var zero T
		return zero, wrapf(ErrInvalidAddress, "load at %d is outside any live allocation", addr)
	}
	return slice.data[offset], nil
}

func (h *genericHeap[T]) store(addr uint64, v T) error {
	slice, offset, ok := h.resolve(addr)
	if !ok {
		return wrapf(ErrInvalidAddress, "store at %d is outside any live allocation", addr)
	}
	slice.data[offset] = v
	return nil
}

// loadAll returns the remainder of the owning slice from addr's offset
// on, allowed to be an empty (but not out-of-range) tail.
func (h *genericHeap[T]) loadAll(addr uint64) ([]T, error) {
	base, value, ok := h.idx.closestSmaller(addr)
	if !ok {
		return nil, wrapf(ErrInvalidAddress, "load-all at %d is outside any live allocation", addr)
	}
	slice := value.(*heapSlice[T])
	offset := addr - base
	if offset > uint64(len(slice.data)) {
		return nil, wrapf(ErrInvalidAddress, "load-all at %d is outside its allocation", addr)
	}
	return slice.data[offset:], nil
}

func (h *genericHeap[T]) liveCount() int {
	return h.idx.size()
}

func (h *genericHeap[T]) teardown() {
	h.idx = newAddressIndex()
}

// TypedHeap is the heap of tagged Value cells (spec.md §3, §4.6).
type TypedHeap struct {
	heap *genericHeap[Value]
}

func newTypedHeap() *TypedHeap {
	return &TypedHeap{heap: newGenericHeap[Value]()}
}

func (h *TypedHeap) Alloc(n int) uint64            { return h.heap.alloc(n) }
func (h *TypedHeap) Free(addr uint64)              { h.heap.free(addr) }
func (h *TypedHeap) Load(addr uint64) (Value, error) { return h.heap.load(addr) }
func (h *TypedHeap) Store(addr uint64, v Value) error { return h.heap.store(addr, v) }
func (h *TypedHeap) LoadAll(addr uint64) ([]Value, error) { return h.heap.loadAll(addr) }
func (h *TypedHeap) LiveCount() int                { return h.heap.liveCount() }
func (h *TypedHeap) Teardown()                     { h.heap.teardown() }

// StringHeap is the byte-addressable string heap (spec.md §3, §4.6).
type StringHeap struct {
	heap *genericHeap[byte]
}

func newStringHeap() *StringHeap {
	return &StringHeap{heap: newGenericHeap[byte]()}
}

func (h *StringHeap) Alloc(n int) uint64                { return h.heap.alloc(n) }
func (h *StringHeap) AllocBytes(data []byte) uint64     { return h.heap.allocWith(data) }
func (h *StringHeap) Free(addr uint64)                  { h.heap.free(addr) }
func (h *StringHeap) Load(addr uint64) (byte, error)    { return h.heap.load(addr) }
func (h *StringHeap) Store(addr uint64, b byte) error   { return h.heap.store(addr, b) }
func (h *StringHeap) LoadAll(addr uint64) ([]byte, error) { return h.heap.loadAll(addr) }
func (h *StringHeap) LiveCount() int                    { return h.heap.liveCount() }
func (h *StringHeap) Teardown()                         { h.heap.teardown() }
