// Package anchor signs and verifies commitments to the anchor of a tiered
// commitment tree.
//
// The anchor itself is removed from the published message. A verifier must
// recompute it from its own copy of the tree at State.Position before the
// signature can be checked.
package anchor

import (
	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/forestrie/go-commitmenttree/tct"
	"github.com/forestrie/go-commitmenttree/tcthash"
)

// Cursor records how far the tree had grown when the anchor was taken, as the
// leaf counts of the global tier and of the open epoch and block.
type Cursor struct {
	Epochs      uint32 `cbor:"1,keyasint"`
	Blocks      uint32 `cbor:"2,keyasint"`
	Commitments uint32 `cbor:"3,keyasint"`
}

// CursorOf returns the current cursor of tree.
func CursorOf(tree *tct.Tree) Cursor {
	e, b, c := tree.Lengths()
	return Cursor{Epochs: e, Blocks: b, Commitments: c}
}

// State is the signed payload.
type State struct {
	// Position binds the anchor to a point in the tree's history, only a tree
	// at exactly this cursor reproduces it.
	Position Cursor `cbor:"1,keyasint"`
	Anchor   []byte `cbor:"2,keyasint"`
	// Timestamp is the unix time in milliseconds at signing. Including it
	// allows the same anchor to be signed again.
	Timestamp int64  `cbor:"3,keyasint"`
	Height    uint8  `cbor:"4,keyasint"`
	TreeID    string `cbor:"5,keyasint"`
}

// NewState captures the current anchor of tree.
func NewState(tree *tct.Tree, treeID string, timestamp int64) State {
	root := tree.Root()
	return State{
		Position:  CursorOf(tree),
		Anchor:    root[:],
		Timestamp: timestamp,
		Height:    tree.Height(),
		TreeID:    treeID,
	}
}

// AnchorHash returns the anchor as a hash, the zero Hash when it is detached.
func (s State) AnchorHash() (tcthash.Hash, error) {
	if len(s.Anchor) == 0 {
		return tcthash.Hash{}, nil
	}
	return tcthash.HashFromBytes(s.Anchor)
}

// NewCodec returns the deterministic codec used for State payloads.
func NewCodec() (dtcbor.CBORCodec, error) {
	codec, err := dtcbor.NewCBORCodec(
		dtcbor.NewDeterministicEncOpts(),
		dtcbor.NewDeterministicDecOpts(),
	)
	if err != nil {
		return dtcbor.CBORCodec{}, err
	}
	return codec, nil
}
