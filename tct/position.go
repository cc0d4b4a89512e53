package tct

import "fmt"

const (
	// MaxHeight bounds the tier height so every index fits in 16 bits.
	MaxHeight uint8 = 8
	// DefaultHeight gives each tier 65,536 slots.
	DefaultHeight uint8 = MaxHeight
)

// Position is the immutable handle of an inserted commitment.
type Position struct {
	Epoch      uint16
	Block      uint16
	Commitment uint16
}

// Uint64 packs the position as epoch<<32 | block<<16 | commitment.
func (p Position) Uint64() uint64 {
	return uint64(p.Epoch)<<32 | uint64(p.Block)<<16 | uint64(p.Commitment)
}

// PositionFromUint64 is the inverse of Position.Uint64.
func PositionFromUint64(v uint64) Position {
	return Position{
		Epoch:      uint16(v >> 32),
		Block:      uint16(v >> 16),
		Commitment: uint16(v),
	}
}

func (p Position) String() string {
	return fmt.Sprintf("%d/%d/%d", p.Epoch, p.Block, p.Commitment)
}

// Leaf returns the index of the position among all 4^(3*height) leaf slots of
// a tree with the given tier height.
func (p Position) Leaf(height uint8) uint64 {
	shift := 2 * uint64(height)
	return uint64(p.Epoch)<<(2*shift) | uint64(p.Block)<<shift | uint64(p.Commitment)
}

// inBounds reports whether every component addresses a slot of a tier of the
// given height.
func (p Position) inBounds(height uint8) bool {
	c := capacity(height)
	return uint32(p.Epoch) < c && uint32(p.Block) < c && uint32(p.Commitment) < c
}

// capacity returns 4^height.
func capacity(height uint8) uint32 {
	return 1 << (2 * uint32(height))
}

// digit returns the child index taken at level (1..height) on the way down to
// leaf index i.
func digit(i uint32, level uint8) int {
	return int(i>>(2*uint32(level-1))) & 3
}
