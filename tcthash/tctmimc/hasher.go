// Package tctmimc hashes tree nodes with MiMC over the BN254 scalar field, so
// that witnesses can be checked inside a zero knowledge circuit.
package tctmimc

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/forestrie/go-commitmenttree/tcthash"
)

const (
	domainLeaf uint64 = 0x746374_6c // "tct" "l"
	domainNode uint64 = 0x746374_6e // "tct" "n"
)

// Hasher is the default tcthash.Hasher. The zero value is ready to use.
//
// Every input is reduced into the scalar field before it is absorbed. Two
// commitments that are congruent modulo the field order therefore hash the
// same, which matches how a circuit sees them.
type Hasher struct{}

var _ tcthash.Hasher = Hasher{}

func New() Hasher { return Hasher{} }

// Leaf returns MiMC(domainLeaf, c).
func (Hasher) Leaf(c tcthash.Commitment) tcthash.Hash {
	var dom fr.Element
	dom.SetUint64(domainLeaf)
	return sum(dom, reduce(c[:]))
}

// Node returns MiMC(domainNode + height, a, b, c, d).
func (Hasher) Node(height uint8, a, b, c, d tcthash.Hash) tcthash.Hash {
	var dom fr.Element
	dom.SetUint64(domainNode + uint64(height))
	return sum(dom, reduce(a[:]), reduce(b[:]), reduce(c[:]), reduce(d[:]))
}

// reduce maps 32 big endian bytes onto a canonical field element.
func reduce(b []byte) fr.Element {
	var e fr.Element
	e.SetBytes(b)
	return e
}

func sum(elems ...fr.Element) tcthash.Hash {
	h := mimc.NewMiMC()
	for i := range elems {
		b := elems[i].Bytes()
		// canonical elements never fail the modulus check
		_, _ = h.Write(b[:])
	}
	var out tcthash.Hash
	copy(out[:], h.Sum(nil))
	return out
}
