package vm

import "github.com/emirpasic/gods/trees/redblacktree"

// addressIndex is the balanced ordered map from spec.md §4.1: a top-down
// red-black tree keyed by a uint64 (a slice's base address, or a bytecode
// offset for the source map), supporting exact lookup plus
// closest-smaller/closest-larger queries.
//
// Hand-rolling a second red-black tree here would just re-derive what
// gods/trees/redblacktree already is: Floor/Ceiling on an ordered tree
// are precisely closest-smaller/closest-larger. The heap, the string
// heap, and the source map all reuse one addressIndex instance apiece.
type addressIndex struct {
	tree *redblacktree.Tree
}

func newAddressIndex() *addressIndex {
	return &addressIndex{tree: redblacktree.NewWith(uint64Comparator)}
}

func uint64Comparator(a, b interface{}) int {
	x, y := a.(uint64), b.(uint64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// insert rejects duplicates, per spec.md §4.1 ("rejects duplicates;
// returns without modifying length"). Returns false if addr was already
// present.
func (idx *addressIndex) insert(addr uint64, value interface{}) bool {
	if _, found := idx.tree.Get(addr); found {
		return false
	}
	idx.tree.Put(addr, value)
	return true
}

func (idx *addressIndex) delete(addr uint64) {
	idx.tree.Remove(addr)
}

func (idx *addressIndex) get(addr uint64) (interface{}, bool) {
	return idx.tree.Get(addr)
}

func (idx *addressIndex) size() int {
	return idx.tree.Size()
}

// closestSmaller returns the greatest key <= addr, the primitive that
// makes "address -> owning allocation" a logarithmic lookup.
func (idx *addressIndex) closestSmaller(addr uint64) (uint64, interface{}, bool) {
	node, found := idx.tree.Floor(addr)
	if !found {
		return 0, nil, false
	}
	return node.Key.(uint64), node.Value, true
}

func (idx *addressIndex) closestLarger(addr uint64) (uint64, interface{}, bool) {
	node, found := idx.tree.Ceiling(addr)
	if !found {
		return 0, nil, false
	}
	return node.Key.(uint64), node.Value, true
}

// keysInOrder returns every key in ascending order; used by tests to
// check the strictly-increasing invariant from spec.md §8.
func (idx *addressIndex) keysInOrder() []uint64 {
	keys := idx.tree.Keys()
	out := make([]uint64, len(keys))
	for i, k := range keys {
		out[i] = k.(uint64)
	}
	return out
}
