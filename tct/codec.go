package tct

import (
	"fmt"

	"github.com/forestrie/go-commitmenttree/tcthash"
	"github.com/fxamacker/cbor/v2"
)

// EncodingVersion identifies the layout written by Tree.MarshalCBOR.
const EncodingVersion uint8 = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// nodeRecord is one node of a tier in pre-order. Internal nodes list which
// children follow as a bit mask. Leaf and internal hashes are recomputed on
// load, only hash-only nodes carry theirs.
type nodeRecord struct {
	Kind     uint8           `cbor:"1,keyasint"`
	Hash     []byte          `cbor:"2,keyasint,omitempty"`
	Children uint8           `cbor:"3,keyasint,omitempty"`
	Value    cbor.RawMessage `cbor:"4,keyasint,omitempty"`
}

type tierRecord struct {
	Len       uint32       `cbor:"1,keyasint"`
	Finalized bool         `cbor:"2,keyasint,omitempty"`
	Nodes     []nodeRecord `cbor:"3,keyasint"`
}

type treeRecord struct {
	Version uint8      `cbor:"1,keyasint"`
	Height  uint8      `cbor:"2,keyasint"`
	Global  tierRecord `cbor:"3,keyasint"`
	Epoch   tierRecord `cbor:"4,keyasint"`
	Block   tierRecord `cbor:"5,keyasint"`
}

// MarshalCBOR encodes every tier of the tree, hash-only nodes included.
func (t *Tree) MarshalCBOR() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec := treeRecord{Version: EncodingVersion, Height: t.opts.Height}
	var err error
	if rec.Global, err = t.global.record(encodeEpoch); err != nil {
		return nil, err
	}
	if rec.Epoch, err = t.epoch.record(encodeBlock); err != nil {
		return nil, err
	}
	if rec.Block, err = t.block.record(encodeCommitment); err != nil {
		return nil, err
	}
	return encMode.Marshal(rec)
}

// Unmarshal restores a tree written by Tree.MarshalCBOR. The tier height is
// taken from the encoding, any WithHeight option is ignored. The hasher must
// be the one the tree was built with.
func Unmarshal(data []byte, opts ...Option) (*Tree, error) {
	var rec treeRecord
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if rec.Version != EncodingVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecode, rec.Version)
	}
	o, err := newOptions(append(opts, WithHeight(rec.Height))...)
	if err != nil {
		return nil, err
	}
	t := newTree(o)

	decodeBlock := func(raw []byte) (*blockTier, error) {
		return decodeSealed(raw, o.Hasher, o.Height, 0, o.Hasher.Leaf, decodeCommitment)
	}
	decodeEpoch := func(raw []byte) (*epochTier, error) {
		return decodeSealed(raw, o.Hasher, o.Height, o.Height, subRoot[tcthash.Commitment], decodeBlock)
	}

	if t.global, err = tierFromRecord(rec.Global, o.Hasher, o.Height, 2*o.Height, subRoot[*blockTier], decodeEpoch); err != nil {
		return nil, err
	}
	if t.epoch, err = tierFromRecord(rec.Epoch, o.Hasher, o.Height, o.Height, subRoot[tcthash.Commitment], decodeBlock); err != nil {
		return nil, err
	}
	if t.block, err = tierFromRecord(rec.Block, o.Hasher, o.Height, 0, o.Hasher.Leaf, decodeCommitment); err != nil {
		return nil, err
	}

	switch {
	case t.global.IsFinalized() || t.epoch.IsFinalized() || t.block.IsFinalized():
		return nil, fmt.Errorf("%w: open tier marked finalized", ErrDecode)
	case t.global.IsFull() && (!t.epoch.IsEmpty() || !t.block.IsEmpty()):
		return nil, fmt.Errorf("%w: commitments beyond a full tree", ErrDecode)
	case t.epoch.IsFull() && !t.block.IsEmpty():
		return nil, fmt.Errorf("%w: commitments beyond a full epoch", ErrDecode)
	}

	t.reindex()
	return t, nil
}

// reindex rebuilds the commitment index from the witnessed leaves.
func (t *Tree) reindex() {
	e := uint16(t.global.Len())
	b := uint16(t.epoch.Len())
	t.block.eachWitnessed(func(c uint32, v tcthash.Commitment) {
		t.index[v] = Position{Epoch: e, Block: b, Commitment: uint16(c)}
	})
	indexEpoch := func(e uint16, ep *epochTier) {
		ep.eachWitnessed(func(b uint32, blk *blockTier) {
			blk.eachWitnessed(func(c uint32, v tcthash.Commitment) {
				t.index[v] = Position{Epoch: e, Block: uint16(b), Commitment: uint16(c)}
			})
		})
	}
	indexEpoch(e, t.epoch)
	t.global.eachWitnessed(func(i uint32, ep *epochTier) { indexEpoch(uint16(i), ep) })
}

func encodeCommitment(c tcthash.Commitment) ([]byte, error) {
	return encMode.Marshal(c[:])
}

func decodeCommitment(raw []byte) (tcthash.Commitment, error) {
	var b []byte
	if err := decMode.Unmarshal(raw, &b); err != nil {
		return tcthash.Commitment{}, err
	}
	return tcthash.CommitmentFromBytes(b)
}

func encodeBlock(blk *blockTier) ([]byte, error) {
	rec, err := blk.record(encodeCommitment)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(rec)
}

func encodeEpoch(ep *epochTier) ([]byte, error) {
	rec, err := ep.record(encodeBlock)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(rec)
}

// decodeSealed decodes a finalized sub-tier stored as a leaf payload.
func decodeSealed[T any](
	raw []byte, hasher tcthash.Hasher, height, base uint8,
	leafHash func(T) tcthash.Hash, dec func([]byte) (T, error),
) (*Tier[T], error) {
	var rec tierRecord
	if err := decMode.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	sub, err := tierFromRecord(rec, hasher, height, base, leafHash, dec)
	if err != nil {
		return nil, err
	}
	if !sub.IsFinalized() {
		return nil, fmt.Errorf("%w: retained sub-tier is not finalized", ErrDecode)
	}
	sub.refresh()
	return sub, nil
}

func (t *Tier[T]) record(enc func(T) ([]byte, error)) (tierRecord, error) {
	rec := tierRecord{Len: t.len, Finalized: t.finalized}
	if t.root == noRef {
		return rec, nil
	}
	err := t.appendRecords(&rec.Nodes, t.root, enc)
	return rec, err
}

func (t *Tier[T]) appendRecords(out *[]nodeRecord, ref int32, enc func(T) ([]byte, error)) error {
	n := t.nodes[ref]
	switch n.kind {
	case kindHash:
		h := n.hash
		*out = append(*out, nodeRecord{Kind: uint8(kindHash), Hash: h[:]})
	case kindLeaf:
		v, err := enc(n.value)
		if err != nil {
			return err
		}
		*out = append(*out, nodeRecord{Kind: uint8(kindLeaf), Value: v})
	case kindInternal:
		var mask uint8
		for i, c := range n.children {
			if c != noRef {
				mask |= 1 << i
			}
		}
		*out = append(*out, nodeRecord{Kind: uint8(kindInternal), Children: mask})
		for _, c := range n.children {
			if c == noRef {
				continue
			}
			if err := t.appendRecords(out, c, enc); err != nil {
				return err
			}
		}
	}
	return nil
}

func tierFromRecord[T any](
	rec tierRecord, hasher tcthash.Hasher, height, base uint8,
	leafHash func(T) tcthash.Hash, dec func([]byte) (T, error),
) (*Tier[T], error) {
	t := newTier(hasher, height, base, leafHash)
	if rec.Len > t.Capacity() {
		return nil, fmt.Errorf("%w: tier length %d exceeds capacity", ErrDecode, rec.Len)
	}
	t.len = rec.Len
	t.finalized = rec.Finalized
	if len(rec.Nodes) == 0 {
		if rec.Len != 0 {
			return nil, fmt.Errorf("%w: non empty tier without nodes", ErrDecode)
		}
		return t, nil
	}

	d := tierDecoder[T]{t: t, nodes: rec.Nodes, dec: dec}
	root, err := d.node(height, 0)
	if err != nil {
		return nil, err
	}
	if d.next != len(rec.Nodes) {
		return nil, fmt.Errorf("%w: %d trailing nodes", ErrDecode, len(rec.Nodes)-d.next)
	}
	t.root = root
	return t, nil
}

type tierDecoder[T any] struct {
	t     *Tier[T]
	nodes []nodeRecord
	next  int
	dec   func([]byte) (T, error)
}

// node decodes the subtree at level whose leftmost leaf index is first.
func (d *tierDecoder[T]) node(level uint8, first uint32) (int32, error) {
	if d.next >= len(d.nodes) {
		return noRef, fmt.Errorf("%w: truncated tier", ErrDecode)
	}
	r := d.nodes[d.next]
	d.next++
	if first >= d.t.len {
		return noRef, fmt.Errorf("%w: node beyond the tier length", ErrDecode)
	}

	switch nodeKind(r.Kind) {
	case kindHash:
		// an open tier still inserts below the cursor, which needs internal
		// nodes all the way down
		if !d.t.finalized && uint64(first)+uint64(span(level)) > uint64(d.t.len) {
			return noRef, fmt.Errorf("%w: hash-only node covers the insertion cursor", ErrDecode)
		}
		h, err := tcthash.HashFromBytes(r.Hash)
		if err != nil {
			return noRef, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return d.t.alloc(node[T]{kind: kindHash, hash: h}), nil

	case kindLeaf:
		if level != 0 {
			return noRef, fmt.Errorf("%w: leaf at level %d", ErrDecode, level)
		}
		v, err := d.dec(r.Value)
		if err != nil {
			return noRef, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		d.t.witnessed.Set(uint(first))
		return d.t.alloc(node[T]{kind: kindLeaf, hash: d.t.leafHash(v), value: v}), nil

	case kindInternal:
		if level == 0 {
			return noRef, fmt.Errorf("%w: internal node at leaf level", ErrDecode)
		}
		ref := d.t.alloc(internalNode[T]())
		sub := span(level - 1)
		for i := 0; i < 4; i++ {
			if r.Children&(1<<i) == 0 {
				if first+uint32(i)*sub < d.t.len {
					return noRef, fmt.Errorf("%w: missing node below the tier length", ErrDecode)
				}
				continue
			}
			c, err := d.node(level-1, first+uint32(i)*sub)
			if err != nil {
				return noRef, err
			}
			d.t.nodes[ref].children[i] = c
		}
		return ref, nil
	}
	return noRef, fmt.Errorf("%w: unknown node kind %d", ErrDecode, r.Kind)
}

// span returns the number of leaf slots under a node at level.
func span(level uint8) uint32 {
	return 1 << (2 * uint32(level))
}
