// Package tctsha3 provides a SHA3-256 tcthash.Hasher for deployments that do
// not need circuit friendly hashing.
package tctsha3

import (
	"github.com/forestrie/go-commitmenttree/tcthash"
	"golang.org/x/crypto/sha3"
)

const (
	domainLeaf byte = 0x4c
	domainNode byte = 0x4e
)

type Hasher struct{}

var _ tcthash.Hasher = Hasher{}

func New() Hasher { return Hasher{} }

// Leaf returns SHA3-256(0x4c || c).
func (Hasher) Leaf(c tcthash.Commitment) tcthash.Hash {
	h := sha3.New256()
	h.Write([]byte{domainLeaf})
	h.Write(c[:])
	var out tcthash.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Node returns SHA3-256(0x4e || height || a || b || c || d).
func (Hasher) Node(height uint8, a, b, c, d tcthash.Hash) tcthash.Hash {
	h := sha3.New256()
	h.Write([]byte{domainNode, height})
	h.Write(a[:])
	h.Write(b[:])
	h.Write(c[:])
	h.Write(d[:])
	var out tcthash.Hash
	copy(out[:], h.Sum(nil))
	return out
}
