package tct

import "github.com/forestrie/go-commitmenttree/tcthash"

// Siblings are the hashes of the three children beside the path at one
// level, in child order with the path's own child left out.
type Siblings [3]tcthash.Hash

// AuthPath holds one Siblings per level, ordered from the leaf up to the root.
type AuthPath []Siblings

// Witness returns the payload of the witnessed leaf at idx and its
// authentication path up to Root.
func (t *Tier[T]) Witness(idx uint32) (T, AuthPath, error) {
	value, ok := t.Get(idx)
	if !ok {
		return value, nil, ErrNotWitnessed
	}
	return value, t.pathWith(idx, nil), nil
}

// pathWith returns the authentication path for slot idx. idx must be a
// witnessed leaf or the insertion cursor of an open tier. When focus is set it
// stands in for the leaf at the insertion cursor, so the path leads to
// rootWith(focus) rather than Root.
//
//	level 2              n
//	            /     /     \     \
//	level 1    a     b       c     d
//	              / / \ \
//	level 0     b0 b1 b2 b3
//
//	path for idx 5 (b1): [b0 b2 b3] [a c d]
func (t *Tier[T]) pathWith(idx uint32, focus *tcthash.Hash) AuthPath {
	path := make(AuthPath, t.height)
	ref := t.root
	for level := t.height; level >= 1; level-- {
		children := noChildren
		if ref != noRef {
			children = t.nodes[ref].children
		}
		d := digit(idx, level)
		prefix := (idx >> (2 * uint32(level))) << 2

		var s Siblings
		k := 0
		for i, c := range children {
			if i == d {
				continue
			}
			s[k] = t.childHash(c, level-1, prefix|uint32(i), focus)
			k++
		}
		path[level-1] = s
		ref = children[d]
	}
	return path
}

// childHash hashes the subtree at ref, rooted at level, covering the leaves
// whose index shifted right by 2*level equals prefix.
func (t *Tier[T]) childHash(ref int32, level uint8, prefix uint32, focus *tcthash.Hash) tcthash.Hash {
	if focus != nil && !t.finalized && !t.IsFull() && t.len>>(2*uint32(level)) == prefix {
		return t.hashWith(ref, level, *focus)
	}
	return t.nodeHash(ref, level)
}
