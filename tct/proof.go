package tct

import (
	"fmt"

	"github.com/forestrie/go-commitmenttree/tcthash"
)

// Proof shows that Commitment was inserted at Position of a tree whose anchor
// the proof reproduces.
type Proof struct {
	Position   Position           `json:"position"`
	Commitment tcthash.Commitment `json:"commitment"`
	// AuthPath has 3*height entries: the commitment tier path, then the block
	// tier path, then the global tier path.
	AuthPath AuthPath `json:"authPath"`
}

// Height returns the tier height the proof was made for.
func (p Proof) Height() uint8 {
	return uint8(len(p.AuthPath) / 3)
}

// Root recomputes the anchor committed to by the proof.
func (p Proof) Root(hasher tcthash.Hasher) (tcthash.Hash, error) {
	n := len(p.AuthPath)
	if n == 0 || n%3 != 0 || n > 3*int(MaxHeight) {
		return tcthash.Hash{}, fmt.Errorf("%w: auth path has %d levels", ErrVerifyProofFailed, n)
	}
	height := p.Height()
	if !p.Position.inBounds(height) {
		return tcthash.Hash{}, fmt.Errorf("%w: %s", ErrInvalidPosition, p.Position)
	}

	return fold(hasher, p.Position.Leaf(height), p.Commitment, p.AuthPath), nil
}

// Verify checks the proof against anchor.
func (p Proof) Verify(hasher tcthash.Hasher, anchor tcthash.Hash) error {
	root, err := p.Root(hasher)
	if err != nil {
		return err
	}
	if root != anchor {
		return fmt.Errorf("%w: position %s", ErrVerifyProofFailed, p.Position)
	}
	return nil
}

// EpochProof shows that Commitment was inserted at Position of an epoch whose
// root the proof reproduces. Position.Epoch is always zero.
type EpochProof struct {
	Position   Position           `json:"position"`
	Commitment tcthash.Commitment `json:"commitment"`
	// AuthPath has 2*height entries: the commitment tier path, then the block
	// tier path.
	AuthPath AuthPath `json:"authPath"`
}

func (p EpochProof) Height() uint8 {
	return uint8(len(p.AuthPath) / 2)
}

// Root recomputes the epoch root committed to by the proof.
func (p EpochProof) Root(hasher tcthash.Hasher) (tcthash.Hash, error) {
	n := len(p.AuthPath)
	if n == 0 || n%2 != 0 || n > 2*int(MaxHeight) {
		return tcthash.Hash{}, fmt.Errorf("%w: auth path has %d levels", ErrVerifyProofFailed, n)
	}
	height := p.Height()
	if p.Position.Epoch != 0 || !p.Position.inBounds(height) {
		return tcthash.Hash{}, fmt.Errorf("%w: %s", ErrInvalidPosition, p.Position)
	}
	return fold(hasher, p.Position.Leaf(height), p.Commitment, p.AuthPath), nil
}

// Verify checks the proof against an epoch root.
func (p EpochProof) Verify(hasher tcthash.Hasher, root tcthash.Hash) error {
	got, err := p.Root(hasher)
	if err != nil {
		return err
	}
	if got != root {
		return fmt.Errorf("%w: position %s", ErrVerifyProofFailed, p.Position)
	}
	return nil
}

// fold hashes c up path, taking at each level the child given by the base 4
// digits of leaf.
func fold(hasher tcthash.Hasher, leaf uint64, c tcthash.Commitment, path AuthPath) tcthash.Hash {
	cur := hasher.Leaf(c)
	for i, s := range path {
		d := int(leaf>>(2*uint(i))) & 3
		cur = combine(hasher, uint8(i+1), d, cur, s)
	}
	return cur
}

// combine hashes cur, placed as child d, together with its siblings.
func combine(hasher tcthash.Hasher, height uint8, d int, cur tcthash.Hash, s Siblings) tcthash.Hash {
	var hs [4]tcthash.Hash
	k := 0
	for i := range hs {
		if i == d {
			hs[i] = cur
			continue
		}
		hs[i] = s[k]
		k++
	}
	return hashNode(hasher, height, hs)
}
