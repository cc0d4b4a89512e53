package snapshot

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-commitmenttree/anchor"
	"github.com/forestrie/go-commitmenttree/tct"
	"github.com/forestrie/go-commitmenttree/tcthash"
	"github.com/forestrie/go-commitmenttree/tcthash/tctsha3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veraison/go-cose"
)

func commitment(i int) tcthash.Commitment {
	return tcthash.Commitment{0xc0, byte(i >> 8), byte(i)}
}

// testTree builds a tree over several epochs, keeping even commitments.
func testTree(t *testing.T) *tct.Tree {
	tree, err := tct.New(tct.WithHeight(2), tct.WithHasher(tctsha3.New()))
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		w := tct.Forget
		if i%2 == 0 {
			w = tct.Keep
		}
		_, err := tree.Insert(commitment(i), w)
		require.NoError(t, err)
		switch {
		case i%30 == 29:
			require.NoError(t, tree.EndEpoch())
		case i%7 == 6:
			require.NoError(t, tree.EndBlock())
		}
	}
	return tree
}

func testSigner(t *testing.T) (cose.Signer, *ecdsa.PrivateKey) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	require.NoError(t, err)
	return signer, key
}

func TestSaveLoad(t *testing.T) {
	logger.New("TEST")

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			tree := testTree(t)

			id, err := Save(ctx, store, tree, WithBloom(10, 4))
			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, id)

			loaded, err := Load(ctx, store, id, tctsha3.New())
			require.NoError(t, err)
			require.Equal(t, tree.Root(), loaded.Root())
			require.Equal(t, tree.WitnessedCount(), loaded.WitnessedCount())

			for i := 0; i < 100; i += 2 {
				ok, err := MaybeWitnessed(ctx, store, id, commitment(i))
				require.NoError(t, err)
				require.True(t, ok, "commitment %d", i)

				proof, err := loaded.Witness(commitment(i))
				require.NoError(t, err)
				require.NoError(t, proof.Verify(loaded.Hasher(), loaded.Root()))
			}

			// without a signer there is no anchor
			_, _, err = LoadAnchor(ctx, store, id)
			require.ErrorIs(t, err, ErrNoAnchor)
		})
	}
}

// TestSaveOverwrite extends a snapshot through a store that did not write it,
// as each tctctl invocation does.
func TestSaveOverwrite(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobs()
	first := NewBlobStore(blobs)
	signer, key := testSigner(t)

	id, err := Save(ctx, first, testTree(t), WithSigner(signer, "k"))
	require.NoError(t, err)

	second := NewBlobStore(blobs)
	tree, err := Load(ctx, second, id, tctsha3.New())
	require.NoError(t, err)
	_, err = tree.Insert(commitment(1000), tct.Keep)
	require.NoError(t, err)
	again, err := Save(ctx, second, tree, WithID(id), WithSigner(signer, "k"))
	require.NoError(t, err)
	require.Equal(t, id, again)

	loaded, err := Load(ctx, NewBlobStore(blobs), id, tctsha3.New())
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), loaded.Root())
	_, err = VerifyAnchor(ctx, NewBlobStore(blobs), id, loaded, key.Public(), nil)
	require.NoError(t, err)

	ok, err := MaybeWitnessed(ctx, second, id, commitment(1000))
	require.NoError(t, err)
	assert.True(t, ok)

	// the first store still holds the versions it wrote, which are gone
	_, err = Save(ctx, first, testTree(t), WithID(id))
	require.ErrorIs(t, err, ErrWriteConflict)

	// a snapshot saved without a signer gains an anchor on a later signed save
	plain, err := Save(ctx, first, testTree(t))
	require.NoError(t, err)
	tree, err = Load(ctx, second, plain, tctsha3.New())
	require.NoError(t, err)
	_, err = Save(ctx, second, tree, WithID(plain), WithSigner(signer, "k"))
	require.NoError(t, err)
}

func TestMaybeWitnessedForgotten(t *testing.T) {
	ctx := context.Background()
	store := storeFactories()["bolt"](t)
	tree := testTree(t)

	id, err := Save(ctx, store, tree)
	require.NoError(t, err)

	misses := 0
	for i := 1; i < 100; i += 2 {
		ok, err := MaybeWitnessed(ctx, store, id, commitment(i))
		require.NoError(t, err)
		if !ok {
			misses++
		}
	}
	// forgotten commitments are almost all ruled out
	assert.Greater(t, misses, 40)
}

func TestSaveSignedAnchor(t *testing.T) {
	ctx := context.Background()
	store := storeFactories()["leveldb"](t)
	tree := testTree(t)
	signer, key := testSigner(t)
	now := time.UnixMilli(1_700_000_000_000)

	id, err := Save(ctx, store, tree,
		WithSigner(signer, "tct key 1"),
		WithExternal([]byte("ext")),
		WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	msg, state, err := LoadAnchor(ctx, store, id)
	require.NoError(t, err)
	assert.Empty(t, state.Anchor)
	assert.Equal(t, id.String(), state.TreeID)
	assert.Equal(t, now.UnixMilli(), state.Timestamp)
	kid, err := anchor.KeyID(msg)
	require.NoError(t, err)
	assert.Equal(t, "tct key 1", kid)

	loaded, err := Load(ctx, store, id, tctsha3.New())
	require.NoError(t, err)
	verified, err := VerifyAnchor(ctx, store, id, loaded, key.Public(), []byte("ext"))
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), tcthash.Hash(verified.Anchor))

	// wrong external data
	_, err = VerifyAnchor(ctx, store, id, loaded, key.Public(), nil)
	require.ErrorIs(t, err, anchor.ErrBadSignature)

	// a tree that has moved on no longer matches the signed cursor
	require.NoError(t, loaded.EndBlock())
	_, err = VerifyAnchor(ctx, store, id, loaded, key.Public(), []byte("ext"))
	require.ErrorIs(t, err, ErrAnchorMismatch)
}

func TestSaveBadBloom(t *testing.T) {
	store := NewBlobStore(newFakeBlobs())
	_, err := Save(context.Background(), store, testTree(t), WithBloom(10, 0))
	require.Error(t, err)
}
