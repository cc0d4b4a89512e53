package tct

import (
	"fmt"

	"github.com/forestrie/go-commitmenttree/tcthash"
)

// Block builds one block apart from any tree, to be added whole with
// Tree.InsertBlock or Epoch.InsertBlock. A Block is not safe for concurrent
// use.
type Block struct {
	opts  Options
	tier  *blockTier
	index map[tcthash.Commitment]uint16
}

func NewBlock(opts ...Option) (*Block, error) {
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &Block{
		opts:  o,
		tier:  newTier(o.Hasher, o.Height, 0, o.Hasher.Leaf),
		index: make(map[tcthash.Commitment]uint16),
	}, nil
}

func (b *Block) Len() uint32         { return b.tier.Len() }
func (b *Block) WitnessedCount() int { return len(b.index) }

// Insert appends c and returns its index in the block. Inserting a
// commitment that is already witnessed with Keep forgets the earlier index.
func (b *Block) Insert(c tcthash.Commitment, w Witness) (uint16, error) {
	if b.tier.IsFull() {
		return 0, ErrBlockFull
	}
	keep := w == Keep
	if old, ok := b.index[c]; keep && ok {
		b.tier.Forget(uint32(old))
	}
	idx, err := b.tier.Insert(c, keep)
	if err != nil {
		return 0, err
	}
	if keep {
		b.index[c] = uint16(idx)
	}
	return uint16(idx), nil
}

// Forget stops tracking a witnessed commitment. The root is unchanged.
func (b *Block) Forget(c tcthash.Commitment) bool {
	idx, ok := b.index[c]
	if !ok {
		return false
	}
	delete(b.index, c)
	return b.tier.Forget(uint32(idx))
}

// IndexOf returns the index of a witnessed commitment.
func (b *Block) IndexOf(c tcthash.Commitment) (uint16, bool) {
	idx, ok := b.index[c]
	return idx, ok
}

// Root returns the block root, the zero Hash while the block is empty.
func (b *Block) Root() tcthash.Hash {
	return b.tier.refresh()
}

// Epoch builds one epoch apart from any tree, to be added whole with
// Tree.InsertEpoch. Commitments go into its open block, as for a Tree. An
// Epoch is not safe for concurrent use.
type Epoch struct {
	opts  Options
	epoch *epochTier
	block *blockTier // open, the next leaf of epoch

	// witnessed commitments only, Epoch is always zero
	index map[tcthash.Commitment]Position
}

func NewEpoch(opts ...Option) (*Epoch, error) {
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	ep := &Epoch{opts: o, index: make(map[tcthash.Commitment]Position)}
	ep.epoch = newTier(o.Hasher, o.Height, o.Height, subRoot[tcthash.Commitment])
	ep.block = ep.newBlock()
	return ep, nil
}

func (ep *Epoch) newBlock() *blockTier {
	return newTier(ep.opts.Hasher, ep.opts.Height, 0, ep.opts.Hasher.Leaf)
}

func (ep *Epoch) WitnessedCount() int { return len(ep.index) }

// PositionOf returns the position of a witnessed commitment within the epoch.
func (ep *Epoch) PositionOf(c tcthash.Commitment) (Position, bool) {
	pos, ok := ep.index[c]
	return pos, ok
}

// Insert appends c to the open block.
func (ep *Epoch) Insert(c tcthash.Commitment, w Witness) (Position, error) {
	switch {
	case ep.epoch.IsFull():
		return Position{}, ErrEpochFull
	case ep.block.IsFull():
		return Position{}, ErrBlockFull
	}
	pos := Position{Block: uint16(ep.epoch.Len()), Commitment: uint16(ep.block.Len())}
	keep := w == Keep
	if old, ok := ep.index[c]; keep && ok {
		ep.forget(old)
	}
	if _, err := ep.block.Insert(c, keep); err != nil {
		return Position{}, err
	}
	if keep {
		ep.index[c] = pos
	}
	return pos, nil
}

// EndBlock seals the open block and opens a new one.
func (ep *Epoch) EndBlock() error {
	if ep.epoch.IsFull() {
		return ErrEpochFull
	}
	ep.endBlock()
	return nil
}

func (ep *Epoch) endBlock() {
	blk := ep.block
	blk.Finalize()
	_, _ = ep.epoch.Insert(blk, blk.WitnessedCount() > 0)
	ep.block = ep.newBlock()
}

// InsertBlockRoot records a whole block by its root alone. A non empty open
// block is ended first.
func (ep *Epoch) InsertBlockRoot(root tcthash.Hash) error {
	if err := ep.makeRoomForBlock(); err != nil {
		return err
	}
	_, err := ep.epoch.InsertHash(root)
	return err
}

// InsertBlock adds b whole, as Tree.InsertBlock does. The epoch takes
// ownership of b.
func (ep *Epoch) InsertBlock(b *Block) error {
	if b.opts.Height != ep.opts.Height {
		return fmt.Errorf("%w: block height %d, epoch height %d", ErrHeightMismatch, b.opts.Height, ep.opts.Height)
	}
	if err := ep.makeRoomForBlock(); err != nil {
		return err
	}
	blk := b.tier
	blk.Finalize()
	idx, err := ep.epoch.Insert(blk, blk.WitnessedCount() > 0)
	if err != nil {
		return err
	}
	blk.eachWitnessed(func(c uint32, v tcthash.Commitment) {
		pos := Position{Block: uint16(idx), Commitment: uint16(c)}
		if old, ok := ep.index[v]; ok && old != pos {
			ep.forget(old)
		}
		ep.index[v] = pos
	})
	return nil
}

func (ep *Epoch) makeRoomForBlock() error {
	need := uint32(1)
	if !ep.block.IsEmpty() {
		need++
	}
	if ep.epoch.Len()+need > ep.epoch.Capacity() {
		return ErrEpochFull
	}
	if !ep.block.IsEmpty() {
		ep.endBlock()
	}
	return nil
}

// Forget stops tracking a witnessed commitment. The root is unchanged.
func (ep *Epoch) Forget(c tcthash.Commitment) bool {
	pos, ok := ep.index[c]
	if !ok {
		return false
	}
	return ep.forget(pos)
}

func (ep *Epoch) forget(pos Position) bool {
	value, forgotten := forgetInEpoch(ep.epoch, ep.block, uint32(pos.Block), uint32(pos.Commitment))
	if !forgotten {
		return false
	}
	if p, ok := ep.index[value]; ok && p == pos {
		delete(ep.index, value)
	}
	return true
}

// Root returns the epoch root with the open block in place.
func (ep *Epoch) Root() tcthash.Hash {
	ep.epoch.refresh()
	return ep.epoch.rootWith(ep.blockFocus())
}

// CurrentBlockRoot returns the root of the open block.
func (ep *Epoch) CurrentBlockRoot() tcthash.Hash {
	return ep.block.refresh()
}

func (ep *Epoch) blockFocus() *tcthash.Hash {
	if ep.block.IsEmpty() {
		return nil
	}
	h := ep.block.refresh()
	return &h
}

// Witness returns a proof of inclusion for a witnessed commitment, checkable
// against the current Root.
func (ep *Epoch) Witness(c tcthash.Commitment) (EpochProof, error) {
	pos, ok := ep.index[c]
	if !ok {
		return EpochProof{}, fmt.Errorf("%w: commitment %s", ErrNotWitnessed, c)
	}
	ep.block.refresh()
	ep.epoch.refresh()
	value, path, ok := witnessInEpoch(ep.epoch, ep.block, uint32(pos.Block), uint32(pos.Commitment))
	if !ok {
		return EpochProof{}, fmt.Errorf("%w: %s", ErrNotWitnessed, pos)
	}
	return EpochProof{Position: pos, Commitment: value, AuthPath: path}, nil
}

// seal ends the open block, if it has any commitments, and hands over the
// epoch tier.
func (ep *Epoch) seal() *epochTier {
	if !ep.block.IsEmpty() {
		ep.endBlock()
	}
	return ep.epoch
}
