package tct

import (
	"fmt"
	"sync"

	"github.com/forestrie/go-commitmenttree/tcthash"
)

type (
	blockTier  = Tier[tcthash.Commitment]
	epochTier  = Tier[*blockTier]
	globalTier = Tier[*epochTier]
)

// Witness says whether an inserted commitment should stay provable.
type Witness uint8

const (
	// Keep retains the commitment so it can be witnessed later.
	Keep Witness = iota
	// Forget keeps only the commitment's hash.
	Forget
)

// Tree is the tiered commitment tree. It is safe for concurrent use: one
// writer at a time, any number of readers. Readers always see the tree
// either before or after any mutation, never part way through one.
type Tree struct {
	mu   sync.RWMutex
	opts Options

	global *globalTier
	epoch  *epochTier // open, the next leaf of global
	block  *blockTier // open, the next leaf of epoch

	// witnessed commitments only
	index map[tcthash.Commitment]Position

	// dirty is set when a mutation may have changed a hash. anchor is valid
	// only while dirty is clear.
	dirty  bool
	anchor tcthash.Hash
}

func New(opts ...Option) (*Tree, error) {
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return newTree(o), nil
}

func newTree(o Options) *Tree {
	t := &Tree{
		opts:  o,
		index: make(map[tcthash.Commitment]Position),
		dirty: true,
	}
	t.global = newTier(o.Hasher, o.Height, 2*o.Height, subRoot[*blockTier])
	t.epoch = t.newEpoch()
	t.block = t.newBlock()
	return t
}

func (t *Tree) newBlock() *blockTier {
	return newTier(t.opts.Hasher, t.opts.Height, 0, t.opts.Hasher.Leaf)
}

func (t *Tree) newEpoch() *epochTier {
	return newTier(t.opts.Hasher, t.opts.Height, t.opts.Height, subRoot[tcthash.Commitment])
}

func subRoot[T any](sub *Tier[T]) tcthash.Hash { return sub.Root() }

func (t *Tree) Height() uint8          { return t.opts.Height }
func (t *Tree) Hasher() tcthash.Hasher { return t.opts.Hasher }

func (t *Tree) debugf(format string, args ...any) {
	if t.opts.Log != nil {
		t.opts.Log.Debugf(format, args...)
	}
}

// read runs f under the read lock. Stale hash caches are refreshed first,
// under the write lock.
func (t *Tree) read(f func()) {
	t.mu.RLock()
	if !t.dirty {
		defer t.mu.RUnlock()
		f()
		return
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty {
		t.refreshLocked()
	}
	f()
}

func (t *Tree) refreshLocked() {
	t.block.refresh()
	t.epoch.refresh()
	t.global.refresh()
	t.anchor = t.global.rootWith(t.epochFocus())
	t.dirty = false
}

// blockFocus is the root of the open block, nil while it is empty.
func (t *Tree) blockFocus() *tcthash.Hash {
	if t.block.IsEmpty() {
		return nil
	}
	h := t.block.Root()
	return &h
}

// epochFocus is the root of the open epoch, nil while it is empty.
func (t *Tree) epochFocus() *tcthash.Hash {
	if t.epoch.IsEmpty() && t.block.IsEmpty() {
		return nil
	}
	h := t.epoch.rootWith(t.blockFocus())
	return &h
}

// Root returns the current anchor.
func (t *Tree) Root() tcthash.Hash {
	var root tcthash.Hash
	t.read(func() { root = t.anchor })
	return root
}

// CurrentBlockRoot returns the root of the open block.
func (t *Tree) CurrentBlockRoot() tcthash.Hash {
	var root tcthash.Hash
	t.read(func() { root = t.block.Root() })
	return root
}

// CurrentEpochRoot returns the root of the open epoch, open block included.
func (t *Tree) CurrentEpochRoot() tcthash.Hash {
	var root tcthash.Hash
	t.read(func() { root = t.epoch.rootWith(t.blockFocus()) })
	return root
}

// Position returns the position the next commitment will be inserted at, or
// false if the open block cannot take another commitment.
func (t *Tree) Position() (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pos, err := t.nextPosition()
	return pos, err == nil
}

// PositionOf returns the position of a witnessed commitment.
func (t *Tree) PositionOf(c tcthash.Commitment) (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pos, ok := t.index[c]
	return pos, ok
}

// Lengths returns the number of leaves in the global tier, the open epoch and
// the open block. Unlike Position it is defined for a full tree.
func (t *Tree) Lengths() (epochs, blocks, commitments uint32) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.global.Len(), t.epoch.Len(), t.block.Len()
}

// EachWitnessed calls f for every witnessed commitment in no particular
// order. f must not call back into the tree.
func (t *Tree) EachWitnessed(f func(c tcthash.Commitment, pos Position)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for c, pos := range t.index {
		f(c, pos)
	}
}

// WitnessedCount returns the number of commitments that can be witnessed.
func (t *Tree) WitnessedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.index)
}

func (t *Tree) nextPosition() (Position, error) {
	switch {
	case t.global.IsFull():
		return Position{}, ErrTreeFull
	case t.epoch.IsFull():
		return Position{}, ErrEpochFull
	case t.block.IsFull():
		return Position{}, ErrBlockFull
	}
	return Position{
		Epoch:      uint16(t.global.Len()),
		Block:      uint16(t.epoch.Len()),
		Commitment: uint16(t.block.Len()),
	}, nil
}

// Insert appends a commitment to the open block. Inserting a commitment that
// is already witnessed with Keep forgets the earlier position.
func (t *Tree) Insert(c tcthash.Commitment, w Witness) (Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, err := t.nextPosition()
	if err != nil {
		return Position{}, err
	}
	keep := w == Keep
	if old, ok := t.index[c]; keep && ok {
		t.forgetLocked(old)
	}
	if _, err = t.block.Insert(c, keep); err != nil {
		return Position{}, err
	}
	if keep {
		t.index[c] = pos
	}
	t.dirty = true
	return pos, nil
}

// EndBlock seals the open block into the open epoch and opens a new block.
// Ending an empty block records an empty block.
func (t *Tree) EndBlock() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.global.IsFull() {
		return ErrTreeFull
	}
	if t.epoch.IsFull() {
		return ErrEpochFull
	}
	t.endBlockLocked()
	return nil
}

// endBlockLocked requires room in the open epoch.
func (t *Tree) endBlockLocked() {
	blk := t.block
	root := blk.Finalize()
	witnessed := blk.WitnessedCount()
	idx, _ := t.epoch.Insert(blk, witnessed > 0)
	t.block = t.newBlock()
	t.dirty = true
	t.debugf("end block %d/%d: root %s, %d witnessed", t.global.Len(), idx, root, witnessed)
}

// EndEpoch seals the open block, if it has any commitments, and then the open
// epoch into the global tier.
func (t *Tree) EndEpoch() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.global.IsFull() {
		return ErrTreeFull
	}
	if !t.block.IsEmpty() {
		t.endBlockLocked()
	}
	t.endEpochLocked()
	return nil
}

// endEpochLocked requires room in the global tier.
func (t *Tree) endEpochLocked() {
	ep := t.epoch
	root := ep.Finalize()
	witnessed := ep.WitnessedCount()
	idx, _ := t.global.Insert(ep, witnessed > 0)
	t.epoch = t.newEpoch()
	t.dirty = true
	t.debugf("end epoch %d: root %s, %d blocks witnessed", idx, root, witnessed)
}

// InsertBlockRoot records a whole block by its root alone. A non empty open
// block is ended first.
func (t *Tree) InsertBlockRoot(root tcthash.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.makeRoomForBlock(); err != nil {
		return err
	}
	if _, err := t.epoch.InsertHash(root); err != nil {
		return err
	}
	t.dirty = true
	return nil
}

// InsertBlock adds a block built apart from the tree to the open epoch, its
// witnessed commitments included. A non empty open block is ended first. A
// commitment already witnessed by the tree is forgotten at its earlier
// position. The tree takes ownership of b, which must not be used
// afterwards.
func (t *Tree) InsertBlock(b *Block) error {
	if b.opts.Height != t.opts.Height {
		return fmt.Errorf("%w: block height %d, tree height %d", ErrHeightMismatch, b.opts.Height, t.opts.Height)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.makeRoomForBlock(); err != nil {
		return err
	}
	blk := b.tier
	root := blk.Finalize()
	idx, err := t.epoch.Insert(blk, blk.WitnessedCount() > 0)
	if err != nil {
		return err
	}
	e := uint16(t.global.Len())
	blk.eachWitnessed(func(c uint32, v tcthash.Commitment) {
		t.adopt(v, Position{Epoch: e, Block: uint16(idx), Commitment: uint16(c)})
	})
	t.dirty = true
	t.debugf("insert block %d/%d: root %s, %d witnessed", e, idx, root, blk.WitnessedCount())
	return nil
}

// makeRoomForBlock ends a non empty open block, so the next leaf of the open
// epoch is free for a whole block. Nothing changes on error.
func (t *Tree) makeRoomForBlock() error {
	if t.global.IsFull() {
		return ErrTreeFull
	}
	need := uint32(1)
	if !t.block.IsEmpty() {
		need++
	}
	if t.epoch.Len()+need > t.epoch.Capacity() {
		return ErrEpochFull
	}
	if !t.block.IsEmpty() {
		t.endBlockLocked()
	}
	return nil
}

// InsertEpochRoot records a whole epoch by its root alone. A non empty open
// epoch is ended first.
func (t *Tree) InsertEpochRoot(root tcthash.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.makeRoomForEpoch(); err != nil {
		return err
	}
	if _, err := t.global.InsertHash(root); err != nil {
		return err
	}
	t.dirty = true
	return nil
}

// InsertEpoch adds an epoch built apart from the tree, its open block and
// witnessed commitments included. A non empty open epoch is ended first. A
// commitment already witnessed by the tree is forgotten at its earlier
// position. The tree takes ownership of ep, which must not be used
// afterwards.
func (t *Tree) InsertEpoch(ep *Epoch) error {
	if ep.opts.Height != t.opts.Height {
		return fmt.Errorf("%w: epoch height %d, tree height %d", ErrHeightMismatch, ep.opts.Height, t.opts.Height)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.makeRoomForEpoch(); err != nil {
		return err
	}
	sealed := ep.seal()
	root := sealed.Finalize()
	idx, err := t.global.Insert(sealed, sealed.WitnessedCount() > 0)
	if err != nil {
		return err
	}
	sealed.eachWitnessed(func(b uint32, blk *blockTier) {
		blk.eachWitnessed(func(c uint32, v tcthash.Commitment) {
			t.adopt(v, Position{Epoch: uint16(idx), Block: uint16(b), Commitment: uint16(c)})
		})
	})
	t.dirty = true
	t.debugf("insert epoch %d: root %s, %d blocks witnessed", idx, root, sealed.WitnessedCount())
	return nil
}

// makeRoomForEpoch ends a non empty open epoch, so the next leaf of the
// global tier is free for a whole epoch. Nothing changes on error.
func (t *Tree) makeRoomForEpoch() error {
	open := !t.epoch.IsEmpty() || !t.block.IsEmpty()
	need := uint32(1)
	if open {
		need++
	}
	if t.global.Len()+need > t.global.Capacity() {
		return ErrTreeFull
	}
	if open {
		if !t.block.IsEmpty() {
			t.endBlockLocked()
		}
		t.endEpochLocked()
	}
	return nil
}

// adopt indexes a witnessed commitment that arrived inside a whole block or
// epoch at pos, forgetting any earlier position of it.
func (t *Tree) adopt(c tcthash.Commitment, pos Position) {
	if old, ok := t.index[c]; ok && old != pos {
		t.forgetLocked(old)
	}
	t.index[c] = pos
}

// Forget stops tracking a witnessed commitment. It reports whether the
// commitment was witnessed. The anchor is unchanged.
func (t *Tree) Forget(c tcthash.Commitment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.index[c]
	if !ok {
		return false
	}
	return t.forgetLocked(pos)
}

// ForgetPosition is Forget addressed by position. Positions that were never
// issued, or are already forgotten, are ignored.
func (t *Tree) ForgetPosition(pos Position) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.forgetLocked(pos)
}

// forgetLocked forgets the commitment at pos. Blocks and epochs left with no
// witnessed commitment are forgotten in their parent tier too.
func (t *Tree) forgetLocked(pos Position) bool {
	if !pos.inBounds(t.opts.Height) {
		return false
	}
	e, b, c := uint32(pos.Epoch), uint32(pos.Block), uint32(pos.Commitment)

	var value tcthash.Commitment
	var forgotten bool
	if e == t.global.Len() {
		value, forgotten = forgetInEpoch(t.epoch, t.block, b, c)
	} else {
		ep, ok := t.global.Get(e)
		if !ok {
			return false
		}
		if value, forgotten = forgetInEpoch(ep, nil, b, c); forgotten && ep.WitnessedCount() == 0 {
			t.global.Forget(e)
		}
	}

	if !forgotten {
		return false
	}
	if p, ok := t.index[value]; ok && p == pos {
		delete(t.index, value)
	}
	return true
}

func forgetIn(blk *blockTier, idx uint32) (tcthash.Commitment, bool) {
	value, ok := blk.Get(idx)
	if !ok {
		return value, false
	}
	return value, blk.Forget(idx)
}

// forgetInEpoch forgets commitment c of block b in ep. open is the block at
// the insertion cursor of ep, nil once ep is sealed. A sealed block left
// without witnesses is forgotten in ep.
func forgetInEpoch(ep *epochTier, open *blockTier, b, c uint32) (tcthash.Commitment, bool) {
	if open != nil && b == ep.Len() {
		return forgetIn(open, c)
	}
	blk, ok := ep.Get(b)
	if !ok {
		return tcthash.Commitment{}, false
	}
	value, forgotten := forgetIn(blk, c)
	if forgotten && blk.WitnessedCount() == 0 {
		ep.Forget(b)
	}
	return value, forgotten
}

// Witness returns a proof of inclusion for a witnessed commitment, checkable
// against the current Root.
func (t *Tree) Witness(c tcthash.Commitment) (Proof, error) {
	var proof Proof
	var err error
	t.read(func() {
		pos, ok := t.index[c]
		if !ok {
			err = fmt.Errorf("%w: commitment %s", ErrNotWitnessed, c)
			return
		}
		proof, err = t.witnessLocked(pos)
	})
	return proof, err
}

// WitnessPosition is Witness addressed by position. It fails with
// ErrInvalidPosition if pos was never issued and with ErrNotWitnessed if the
// commitment at pos was forgotten or inserted without Keep.
func (t *Tree) WitnessPosition(pos Position) (Proof, error) {
	var proof Proof
	var err error
	t.read(func() { proof, err = t.witnessLocked(pos) })
	return proof, err
}

func (t *Tree) witnessLocked(pos Position) (Proof, error) {
	if !t.issued(pos) {
		return Proof{}, fmt.Errorf("%w: %s", ErrInvalidPosition, pos)
	}
	notWitnessed := fmt.Errorf("%w: %s", ErrNotWitnessed, pos)
	e, b, c := uint32(pos.Epoch), uint32(pos.Block), uint32(pos.Commitment)

	var value tcthash.Commitment
	var epochPath AuthPath
	var globalFocus *tcthash.Hash
	var ok bool
	if e == t.global.Len() {
		value, epochPath, ok = witnessInEpoch(t.epoch, t.block, b, c)
	} else {
		ep, found := t.global.Get(e)
		if !found {
			return Proof{}, notWitnessed
		}
		value, epochPath, ok = witnessInEpoch(ep, nil, b, c)
		globalFocus = t.epochFocus()
	}
	if !ok {
		return Proof{}, notWitnessed
	}

	path := make(AuthPath, 0, 3*int(t.opts.Height))
	path = append(path, epochPath...)
	path = append(path, t.global.pathWith(e, globalFocus)...)
	return Proof{Position: pos, Commitment: value, AuthPath: path}, nil
}

// witnessInEpoch returns commitment c of block b in ep with its path up to the
// root of ep, the commitment tier levels first. open is the block at the
// insertion cursor of ep, nil once ep is sealed, and the path leads to the
// root ep has with open in place.
func witnessInEpoch(ep *epochTier, open *blockTier, b, c uint32) (tcthash.Commitment, AuthPath, bool) {
	var blk *blockTier
	var focus *tcthash.Hash
	if open != nil && b == ep.Len() {
		blk = open
	} else {
		var ok bool
		if blk, ok = ep.Get(b); !ok {
			return tcthash.Commitment{}, nil, false
		}
		if open != nil && !open.IsEmpty() {
			h := open.Root()
			focus = &h
		}
	}
	value, path, err := blk.Witness(c)
	if err != nil {
		return value, nil, false
	}
	return value, append(path, ep.pathWith(b, focus)...), true
}

// issued reports whether pos could have been handed out by this tree. Inside
// blocks and epochs that were forgotten it cannot tell, and says yes.
func (t *Tree) issued(pos Position) bool {
	if !pos.inBounds(t.opts.Height) {
		return false
	}
	e, b, c := uint32(pos.Epoch), uint32(pos.Block), uint32(pos.Commitment)

	switch {
	case e > t.global.Len():
		return false
	case e == t.global.Len():
		switch {
		case b > t.epoch.Len():
			return false
		case b == t.epoch.Len():
			return c < t.block.Len()
		}
		if blk, ok := t.epoch.Get(b); ok {
			return c < blk.Len()
		}
		return true
	}

	ep, ok := t.global.Get(e)
	if !ok {
		return true
	}
	if b >= ep.Len() {
		return false
	}
	if blk, ok := ep.Get(b); ok {
		return c < blk.Len()
	}
	return true
}
