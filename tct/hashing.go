package tct

import "github.com/forestrie/go-commitmenttree/tcthash"

// hashNode hashes the four children of a node at height. A node whose
// children are all empty is empty too, so zero leaves hash like padding at
// every level.
func hashNode(hasher tcthash.Hasher, height uint8, hs [4]tcthash.Hash) tcthash.Hash {
	if hs[0].IsZero() && hs[1].IsZero() && hs[2].IsZero() && hs[3].IsZero() {
		return tcthash.Hash{}
	}
	return hasher.Node(height, hs[0], hs[1], hs[2], hs[3])
}

// nodeHash returns the hash of the subtree at ref, whose root sits at level.
// Uncached interior hashes are computed but not stored, so nodeHash is safe
// under a read lock.
func (t *Tier[T]) nodeHash(ref int32, level uint8) tcthash.Hash {
	if ref == noRef {
		return tcthash.Hash{}
	}
	n := &t.nodes[ref]
	if n.kind != kindInternal || n.cached {
		return n.hash
	}
	var hs [4]tcthash.Hash
	for i, c := range n.children {
		hs[i] = t.nodeHash(c, level-1)
	}
	return hashNode(t.hasher, t.base+level, hs)
}

// updateHash is nodeHash, but it stores every hash it computes.
func (t *Tier[T]) updateHash(ref int32, level uint8) tcthash.Hash {
	if ref == noRef {
		return tcthash.Hash{}
	}
	n := &t.nodes[ref]
	if n.kind != kindInternal || n.cached {
		return n.hash
	}
	var hs [4]tcthash.Hash
	children := n.children
	for i, c := range children {
		hs[i] = t.updateHash(c, level-1)
	}
	h := hashNode(t.hasher, t.base+level, hs)
	n = &t.nodes[ref]
	n.hash, n.cached = h, true
	return h
}

// hashWith returns the hash of the subtree at ref (at level) that contains the
// insertion cursor, as if focus were the leaf at the cursor.
func (t *Tier[T]) hashWith(ref int32, level uint8, focus tcthash.Hash) tcthash.Hash {
	if level == 0 {
		return focus
	}
	children := noChildren
	if ref != noRef {
		children = t.nodes[ref].children
	}
	d := digit(t.len, level)
	var hs [4]tcthash.Hash
	for i, c := range children {
		if i == d {
			hs[i] = t.hashWith(c, level-1, focus)
			continue
		}
		hs[i] = t.nodeHash(c, level-1)
	}
	return hashNode(t.hasher, t.base+level, hs)
}
