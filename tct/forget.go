package tct

// Forget drops the payload of the witnessed leaf at idx, keeping its hash, and
// collapses every ancestor left with nothing but hash-only children. It
// reports whether a witnessed leaf was present. No hash changes.
func (t *Tier[T]) Forget(idx uint32) bool {
	if !t.Witnessed(idx) {
		return false
	}

	var path [MaxHeight + 1]int32
	ref := t.root
	for level := t.height; level >= 1; level-- {
		path[level] = ref
		ref = t.nodes[ref].children[digit(idx, level)]
	}

	var zero T
	leaf := &t.nodes[ref]
	leaf.kind, leaf.value = kindHash, zero
	t.witnessed.Clear(uint(idx))

	t.compact(path[:])
	return true
}

// compact walks path bottom up, collapsing nodes until one still holds data.
// path[level] is the ref of the node at that level, or noRef when there is
// none.
func (t *Tier[T]) compact(path []int32) {
	for level := uint8(1); level <= t.height; level++ {
		if path[level] == noRef {
			continue
		}
		if !t.collapse(path[level], level) {
			return
		}
	}
}

// collapse replaces the internal node at ref with a hash-only node when none
// of its children retain a payload. Missing children are still to be filled
// while the tier is open, so only a finalized tier collapses a partial node.
func (t *Tier[T]) collapse(ref int32, level uint8) bool {
	if t.nodes[ref].kind != kindInternal {
		return true
	}
	for _, c := range t.nodes[ref].children {
		if c == noRef {
			if !t.finalized {
				return false
			}
			continue
		}
		if t.nodes[c].kind != kindHash {
			return false
		}
	}

	h := t.updateHash(ref, level)
	for _, c := range t.nodes[ref].children {
		if c != noRef {
			t.release(c)
		}
	}
	t.nodes[ref] = node[T]{kind: kindHash, hash: h}
	return true
}

// internalPath returns the refs of the internal nodes on the way down to leaf
// idx, indexed by level. The walk stops at the first node that is not
// internal and leaves the remaining levels as noRef.
func (t *Tier[T]) internalPath(idx uint32) [MaxHeight + 1]int32 {
	var path [MaxHeight + 1]int32
	for i := range path {
		path[i] = noRef
	}
	ref := t.root
	for level := t.height; level >= 1 && ref != noRef && t.nodes[ref].kind == kindInternal; level-- {
		path[level] = ref
		ref = t.nodes[ref].children[digit(idx, level)]
	}
	return path
}
