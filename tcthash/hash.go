// Package tcthash defines the fixed width values stored in a tiered commitment
// tree and the hashing interface used to combine them.
package tcthash

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// ValueBytes is the width of both commitments and node hashes.
const ValueBytes = 32

var (
	ErrBadValueSize = errors.New("tcthash: value must be 32 bytes")
)

// Hash is a node hash. The zero Hash stands for an empty subtree.
type Hash [ValueBytes]byte

// Commitment is an opaque binding to private data, stored as a tree leaf.
type Commitment [ValueBytes]byte

// Hasher produces the leaf and interior hashes of a tree.
//
// Node receives the height of the node being hashed, counted from the
// commitments (height 1 is the parent of four commitment leaves). Missing
// children are passed as the zero Hash.
//
// Implementations must be safe to call concurrently.
type Hasher interface {
	Leaf(c Commitment) Hash
	Node(height uint8, a, b, c, d Hash) Hash
}

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (c Commitment) String() string { return hex.EncodeToString(c[:]) }

// HashFromBytes copies b into a Hash. b must be exactly ValueBytes long.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != ValueBytes {
		return h, fmt.Errorf("%w: got %d", ErrBadValueSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// CommitmentFromBytes copies b into a Commitment. b must be exactly ValueBytes long.
func CommitmentFromBytes(b []byte) (Commitment, error) {
	var c Commitment
	if len(b) != ValueBytes {
		return c, fmt.Errorf("%w: got %d", ErrBadValueSize, len(b))
	}
	copy(c[:], b)
	return c, nil
}

// ParseCommitment decodes a hex encoded commitment.
func ParseCommitment(s string) (Commitment, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Commitment{}, err
	}
	return CommitmentFromBytes(b)
}

// ParseHash decodes a hex encoded hash.
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(b []byte) error {
	v, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

func (c Commitment) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Commitment) UnmarshalText(b []byte) error {
	v, err := ParseCommitment(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
