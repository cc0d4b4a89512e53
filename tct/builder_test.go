package tct

import (
	"testing"

	"github.com/forestrie/go-commitmenttree/tcthash/tctsha3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlock(t *testing.T, height uint8, from, to int) *Block {
	b, err := NewBlock(WithHeight(height), WithHasher(tctsha3.New()))
	require.NoError(t, err)
	for i := from; i < to; i++ {
		w := Forget
		if i%2 == 0 {
			w = Keep
		}
		_, err := b.Insert(commitment(i), w)
		require.NoError(t, err)
	}
	return b
}

// insertRange inserts commitments from..to-1 into tree, keeping the even
// ones as newTestBlock does.
func insertRange(t *testing.T, tree *Tree, from, to int) {
	for i := from; i < to; i++ {
		w := Forget
		if i%2 == 0 {
			w = Keep
		}
		_, err := tree.Insert(commitment(i), w)
		require.NoError(t, err)
	}
}

func TestBlockBuilder(t *testing.T) {
	b := newTestBlock(t, 2, 0, 7)
	ref := newTestTree(t, 2)
	insertRange(t, ref, 0, 7)
	assert.Equal(t, ref.CurrentBlockRoot(), b.Root())
	assert.Equal(t, uint32(7), b.Len())
	assert.Equal(t, 4, b.WitnessedCount())

	idx, ok := b.IndexOf(commitment(4))
	require.True(t, ok)
	assert.Equal(t, uint16(4), idx)
	_, ok = b.IndexOf(commitment(3))
	assert.False(t, ok)

	root := b.Root()
	require.True(t, b.Forget(commitment(4)))
	require.False(t, b.Forget(commitment(4)))
	assert.Equal(t, root, b.Root())

	// keeping a commitment twice moves it
	_, err := b.Insert(commitment(0), Keep)
	require.NoError(t, err)
	idx, ok = b.IndexOf(commitment(0))
	require.True(t, ok)
	assert.Equal(t, uint16(7), idx)
	assert.False(t, b.tier.Witnessed(0))

	full := newTestBlock(t, 1, 0, 4)
	_, err = full.Insert(commitment(9), Keep)
	require.ErrorIs(t, err, ErrBlockFull)
}

func TestTreeInsertBlock(t *testing.T) {
	tests := []struct {
		name string
		open int // commitments in the open block before the insert
	}{
		{"empty open block", 0},
		{"open block is ended first", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := newTestTree(t, 2)
			insertRange(t, ref, 100, 100+tt.open)
			if tt.open > 0 {
				require.NoError(t, ref.EndBlock())
			}
			insertRange(t, ref, 0, 9)
			require.NoError(t, ref.EndBlock())

			tree := newTestTree(t, 2)
			insertRange(t, tree, 100, 100+tt.open)
			require.NoError(t, tree.InsertBlock(newTestBlock(t, 2, 0, 9)))

			require.Equal(t, ref.Root(), tree.Root())
			require.Equal(t, ref.WitnessedCount(), tree.WitnessedCount())
			for i := 0; i < 9; i += 2 {
				want, ok := ref.PositionOf(commitment(i))
				require.True(t, ok)
				got, ok := tree.PositionOf(commitment(i))
				require.True(t, ok)
				require.Equal(t, want, got)

				proof, err := tree.Witness(commitment(i))
				require.NoError(t, err)
				require.NoError(t, proof.Verify(tree.Hasher(), tree.Root()), "commitment %d", i)
			}

			// the tree goes on from the block after the inserted one
			pos, err := tree.Insert(commitment(50), Keep)
			require.NoError(t, err)
			wantPos, err := ref.Insert(commitment(50), Keep)
			require.NoError(t, err)
			require.Equal(t, wantPos, pos)
			require.Equal(t, ref.Root(), tree.Root())
		})
	}
}

func TestTreeInsertBlockDuplicate(t *testing.T) {
	tree := newTestTree(t, 2)
	_, err := tree.Insert(commitment(2), Keep)
	require.NoError(t, err)
	_, err = tree.Insert(commitment(1), Keep)
	require.NoError(t, err)
	anchor := tree.Root()
	old, _ := tree.PositionOf(commitment(2))

	require.NoError(t, tree.InsertBlock(newTestBlock(t, 2, 2, 5)))
	pos, ok := tree.PositionOf(commitment(2))
	require.True(t, ok)
	assert.Equal(t, Position{Epoch: 0, Block: 1, Commitment: 0}, pos)

	_, err = tree.WitnessPosition(old)
	require.ErrorIs(t, err, ErrNotWitnessed)
	_, ok = tree.PositionOf(commitment(1))
	assert.True(t, ok, "other commitments of the earlier block stay")
	assert.NotEqual(t, anchor, tree.Root())

	proof, err := tree.Witness(commitment(2))
	require.NoError(t, err)
	require.NoError(t, proof.Verify(tree.Hasher(), tree.Root()))
}

func TestTreeInsertBlockErrors(t *testing.T) {
	tree := newTestTree(t, 1)
	for i := 0; i < 4; i++ {
		require.NoError(t, tree.EndBlock())
	}
	b := newTestBlock(t, 1, 0, 2)
	root := tree.Root()
	require.ErrorIs(t, tree.InsertBlock(b), ErrEpochFull)
	assert.Equal(t, root, tree.Root())
	assert.False(t, b.tier.IsFinalized(), "a rejected block is left alone")

	require.NoError(t, tree.EndEpoch())
	require.NoError(t, tree.InsertBlock(b))

	require.ErrorIs(t, tree.InsertBlock(newTestBlock(t, 2, 0, 2)), ErrHeightMismatch)
	require.ErrorIs(t, tree.InsertEpoch(newTestEpoch(t, 2)), ErrHeightMismatch)
}

func newTestEpoch(t *testing.T, height uint8) *Epoch {
	ep, err := NewEpoch(WithHeight(height), WithHasher(tctsha3.New()))
	require.NoError(t, err)
	return ep
}

// epochHistory plays the same history into an Epoch and into the open epoch
// of a tree.
func epochHistory(t *testing.T, ep *Epoch, tree *Tree) {
	for i := 0; i < 5; i++ {
		w := Forget
		if i%2 == 0 {
			w = Keep
		}
		_, err := ep.Insert(commitment(i), w)
		require.NoError(t, err)
		_, err = tree.Insert(commitment(i), w)
		require.NoError(t, err)
	}
	require.NoError(t, ep.EndBlock())
	require.NoError(t, tree.EndBlock())

	require.NoError(t, ep.InsertBlockRoot(tctsha3.New().Leaf(commitment(77))))
	require.NoError(t, tree.InsertBlockRoot(tctsha3.New().Leaf(commitment(77))))

	require.NoError(t, ep.InsertBlock(newTestBlock(t, tree.Height(), 10, 16)))
	require.NoError(t, tree.InsertBlock(newTestBlock(t, tree.Height(), 10, 16)))

	for i := 20; i < 23; i++ {
		_, err := ep.Insert(commitment(i), Keep)
		require.NoError(t, err)
		_, err = tree.Insert(commitment(i), Keep)
		require.NoError(t, err)
	}
}

func TestEpochBuilder(t *testing.T) {
	ep := newTestEpoch(t, 2)
	ref := newTestTree(t, 2)
	epochHistory(t, ep, ref)

	require.Equal(t, ref.CurrentEpochRoot(), ep.Root())
	require.Equal(t, ref.CurrentBlockRoot(), ep.CurrentBlockRoot())
	require.Equal(t, ref.WitnessedCount(), ep.WitnessedCount())

	root := ep.Root()
	for _, i := range []int{0, 2, 4, 10, 12, 14, 20, 21, 22} {
		pos, ok := ep.PositionOf(commitment(i))
		require.True(t, ok, "commitment %d", i)
		want, _ := ref.PositionOf(commitment(i))
		require.Equal(t, want, pos)

		proof, err := ep.Witness(commitment(i))
		require.NoError(t, err)
		require.Equal(t, pos, proof.Position)
		require.Equal(t, uint8(2), proof.Height())
		require.NoError(t, proof.Verify(ep.opts.Hasher, root), "commitment %d", i)
	}

	_, err := ep.Witness(commitment(1))
	require.ErrorIs(t, err, ErrNotWitnessed)

	require.True(t, ep.Forget(commitment(12)))
	assert.Equal(t, root, ep.Root())
	_, err = ep.Witness(commitment(12))
	require.ErrorIs(t, err, ErrNotWitnessed)

	// tampering is caught
	proof, err := ep.Witness(commitment(20))
	require.NoError(t, err)
	proof.Position.Commitment++
	require.ErrorIs(t, proof.Verify(ep.opts.Hasher, root), ErrVerifyProofFailed)
	proof.Position.Commitment--
	proof.Position.Epoch = 1
	require.ErrorIs(t, proof.Verify(ep.opts.Hasher, root), ErrInvalidPosition)
}

func TestEpochBuilderCapacity(t *testing.T) {
	ep := newTestEpoch(t, 1)
	for i := 0; i < 3; i++ {
		require.NoError(t, ep.EndBlock())
	}
	_, err := ep.Insert(commitment(0), Keep)
	require.NoError(t, err)
	require.ErrorIs(t, ep.InsertBlockRoot(tctsha3.New().Leaf(commitment(1))), ErrEpochFull)
	require.ErrorIs(t, ep.InsertBlock(newTestBlock(t, 1, 0, 1)), ErrEpochFull)

	require.NoError(t, ep.EndBlock())
	_, err = ep.Insert(commitment(1), Keep)
	require.ErrorIs(t, err, ErrEpochFull)
	require.ErrorIs(t, ep.EndBlock(), ErrEpochFull)
}

func TestTreeInsertEpoch(t *testing.T) {
	ref := newTestTree(t, 2)
	insertRange(t, ref, 100, 103)
	require.NoError(t, ref.EndEpoch())

	tree := newTestTree(t, 2)
	insertRange(t, tree, 100, 103)
	ep := newTestEpoch(t, 2)
	epochHistory(t, ep, ref)
	require.NoError(t, ref.EndEpoch())

	require.NoError(t, tree.InsertEpoch(ep))
	require.Equal(t, ref.Root(), tree.Root())
	require.Equal(t, ref.WitnessedCount(), tree.WitnessedCount())

	for _, i := range []int{100, 102, 0, 2, 4, 10, 12, 14, 20, 21, 22} {
		want, ok := ref.PositionOf(commitment(i))
		require.True(t, ok)
		got, ok := tree.PositionOf(commitment(i))
		require.True(t, ok)
		require.Equal(t, want, got)
		if i < 100 {
			assert.Equal(t, uint16(1), got.Epoch)
		}

		proof, err := tree.Witness(commitment(i))
		require.NoError(t, err)
		require.NoError(t, proof.Verify(tree.Hasher(), tree.Root()), "commitment %d", i)
	}

	// the inserted epoch survives a round trip
	restored := roundTrip(t, tree)
	require.Equal(t, tree.Root(), restored.Root())
	proof, err := restored.Witness(commitment(21))
	require.NoError(t, err)
	require.NoError(t, proof.Verify(restored.Hasher(), restored.Root()))
}

func TestTreeInsertEpochDuplicate(t *testing.T) {
	tree := newTestTree(t, 2)
	_, err := tree.Insert(commitment(0), Keep)
	require.NoError(t, err)
	require.NoError(t, tree.EndEpoch())

	ep := newTestEpoch(t, 2)
	_, err = ep.Insert(commitment(0), Keep)
	require.NoError(t, err)
	require.NoError(t, tree.InsertEpoch(ep))

	pos, ok := tree.PositionOf(commitment(0))
	require.True(t, ok)
	assert.Equal(t, Position{Epoch: 1}, pos)
	assert.False(t, tree.global.Witnessed(0), "the earlier epoch has no witnesses left")
	assert.Equal(t, 1, tree.WitnessedCount())

	full := newTestTree(t, 1)
	for i := 0; i < 4; i++ {
		require.NoError(t, full.EndEpoch())
	}
	require.ErrorIs(t, full.InsertEpoch(newTestEpoch(t, 1)), ErrTreeFull)
}
