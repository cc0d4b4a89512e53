package tct

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/forestrie/go-commitmenttree/tcthash"
)

const noRef int32 = -1

var noChildren = [4]int32{noRef, noRef, noRef, noRef}

type nodeKind uint8

const (
	kindInternal nodeKind = iota
	kindLeaf
	kindHash
)

// node is one arena slot.
//
//   - kindLeaf: a witnessed leaf, keeps its payload and its hash.
//   - kindInternal: up to four children and, when cached is set, the hash of
//     the subtree.
//   - kindHash: stands in for a leaf or subtree whose contents were dropped.
type node[T any] struct {
	kind     nodeKind
	cached   bool
	hash     tcthash.Hash
	children [4]int32
	value    T
}

func internalNode[T any]() node[T] {
	return node[T]{kind: kindInternal, children: noChildren}
}

// Tier is a bounded 4-ary hash tree of fixed height holding up to 4^height
// leaves of type T. Leaves are appended left to right and are either
// witnessed, in which case the payload is retained, or hash-only.
//
// Nodes live in a single arena slice and refer to each other by index, freed
// slots are recycled. Interior hashes are computed lazily and cached.
//
// A Tier is not safe for concurrent mutation. Methods that only read are safe
// to call concurrently with each other.
type Tier[T any] struct {
	hasher   tcthash.Hasher
	leafHash func(T) tcthash.Hash
	height   uint8
	// base offsets node heights so that tiers stacked on each other never
	// hash two different levels at the same height.
	base uint8

	nodes []node[T]
	free  []int32
	root  int32

	len       uint32
	finalized bool
	witnessed *bitset.BitSet
}

// NewTier creates an empty stand alone tier. leafHash maps a payload to the
// hash committed to by its leaf.
func NewTier[T any](hasher tcthash.Hasher, height uint8, leafHash func(T) tcthash.Hash) (*Tier[T], error) {
	if height == 0 || height > MaxHeight {
		return nil, ErrBadHeight
	}
	return newTier(hasher, height, 0, leafHash), nil
}

func newTier[T any](hasher tcthash.Hasher, height, base uint8, leafHash func(T) tcthash.Hash) *Tier[T] {
	return &Tier[T]{
		hasher:    hasher,
		leafHash:  leafHash,
		height:    height,
		base:      base,
		root:      noRef,
		witnessed: bitset.New(0),
	}
}

func (t *Tier[T]) Height() uint8       { return t.height }
func (t *Tier[T]) Capacity() uint32    { return capacity(t.height) }
func (t *Tier[T]) Len() uint32         { return t.len }
func (t *Tier[T]) IsEmpty() bool       { return t.len == 0 }
func (t *Tier[T]) IsFull() bool        { return t.len >= t.Capacity() }
func (t *Tier[T]) IsFinalized() bool   { return t.finalized }
func (t *Tier[T]) WitnessedCount() int { return int(t.witnessed.Count()) }

// Witnessed reports whether the leaf at idx still retains its payload.
func (t *Tier[T]) Witnessed(idx uint32) bool {
	return idx < t.len && t.witnessed.Test(uint(idx))
}

// Insert appends value at the next free slot and returns the slot index. When
// witnessed is false only the leaf hash is kept.
func (t *Tier[T]) Insert(value T, witnessed bool) (uint32, error) {
	if err := t.checkInsert(); err != nil {
		return 0, err
	}
	h := t.leafHash(value)
	if !witnessed {
		return t.insertNode(node[T]{kind: kindHash, hash: h}), nil
	}
	idx := t.insertNode(node[T]{kind: kindLeaf, hash: h, value: value})
	t.witnessed.Set(uint(idx))
	return idx, nil
}

// InsertHash appends a hash-only leaf.
func (t *Tier[T]) InsertHash(h tcthash.Hash) (uint32, error) {
	if err := t.checkInsert(); err != nil {
		return 0, err
	}
	return t.insertNode(node[T]{kind: kindHash, hash: h}), nil
}

func (t *Tier[T]) checkInsert() error {
	if t.finalized {
		return ErrAlreadyFinalized
	}
	if t.IsFull() {
		return ErrCapacityExceeded
	}
	return nil
}

func (t *Tier[T]) insertNode(leaf node[T]) uint32 {
	idx := t.len
	if t.root == noRef {
		t.root = t.alloc(internalNode[T]())
	}

	var path [MaxHeight + 1]int32
	ref := t.root
	for level := t.height; level >= 1; level-- {
		path[level] = ref
		t.nodes[ref].cached = false
		d := digit(idx, level)
		if level == 1 {
			child := t.alloc(leaf)
			t.nodes[ref].children[d] = child
			break
		}
		child := t.nodes[ref].children[d]
		if child == noRef {
			child = t.alloc(internalNode[T]())
			t.nodes[ref].children[d] = child
		}
		ref = child
	}
	t.len++
	t.compact(path[:])
	return idx
}

// Get returns the payload of a witnessed leaf.
func (t *Tier[T]) Get(idx uint32) (T, bool) {
	var zero T
	ref := t.leafRef(idx)
	if ref == noRef {
		return zero, false
	}
	return t.nodes[ref].value, true
}

// leafRef returns the arena slot of the witnessed leaf at idx, or noRef.
func (t *Tier[T]) leafRef(idx uint32) int32 {
	if !t.Witnessed(idx) {
		return noRef
	}
	// every node above a witnessed leaf is internal
	ref := t.root
	for level := t.height; level >= 1; level-- {
		ref = t.nodes[ref].children[digit(idx, level)]
	}
	return ref
}

// eachWitnessed calls f for every witnessed leaf in index order.
func (t *Tier[T]) eachWitnessed(f func(idx uint32, value T)) {
	for i, ok := t.witnessed.NextSet(0); ok; i, ok = t.witnessed.NextSet(i + 1) {
		ref := t.leafRef(uint32(i))
		f(uint32(i), t.nodes[ref].value)
	}
}

// Root returns the hash of the tier. The root of an empty tier is the zero
// Hash. Root never updates the hash cache.
func (t *Tier[T]) Root() tcthash.Hash {
	return t.nodeHash(t.root, t.height)
}

// refresh brings every cached interior hash up to date and returns the root.
func (t *Tier[T]) refresh() tcthash.Hash {
	return t.updateHash(t.root, t.height)
}

// rootWith returns the root the tier would have if focus were inserted at the
// insertion cursor. A nil focus, or a tier that can take no more leaves,
// yields Root.
func (t *Tier[T]) rootWith(focus *tcthash.Hash) tcthash.Hash {
	if focus == nil || t.finalized || t.IsFull() {
		return t.Root()
	}
	return t.hashWith(t.root, t.height, *focus)
}

// Finalize seals the tier and returns its root. A tier without witnessed
// leaves is reduced to a single hash-only node. Finalizing again is a no-op.
func (t *Tier[T]) Finalize() tcthash.Hash {
	if t.finalized {
		return t.Root()
	}
	t.finalized = true
	root := t.refresh()
	switch {
	case t.root == noRef:
	case t.witnessed.None():
		t.nodes, t.free = nil, nil
		t.root = t.alloc(node[T]{kind: kindHash, hash: root})
	default:
		// the last leaf's ancestors are the only partial nodes
		path := t.internalPath(t.len - 1)
		t.compact(path[:])
	}
	return root
}

func (t *Tier[T]) alloc(n node[T]) int32 {
	if k := len(t.free); k > 0 {
		ref := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[ref] = n
		return ref
	}
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

func (t *Tier[T]) release(ref int32) {
	if ref == noRef {
		return
	}
	if t.nodes[ref].kind == kindInternal {
		for _, c := range t.nodes[ref].children {
			t.release(c)
		}
	}
	t.nodes[ref] = node[T]{}
	t.free = append(t.free, ref)
}

// liveNodes counts the arena slots in use.
func (t *Tier[T]) liveNodes() int {
	return len(t.nodes) - len(t.free)
}
