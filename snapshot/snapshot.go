package snapshot

import (
	"context"
	"crypto"
	"errors"
	"fmt"

	"github.com/forestrie/go-commitmenttree/anchor"
	"github.com/forestrie/go-commitmenttree/bloom"
	"github.com/forestrie/go-commitmenttree/tct"
	"github.com/forestrie/go-commitmenttree/tcthash"
	"github.com/google/uuid"
	"github.com/veraison/go-cose"
)

var (
	ErrNoAnchor       = errors.New("snapshot has no signed anchor")
	ErrAnchorMismatch = errors.New("signed anchor does not describe this tree")
)

// Save writes tree, its prefilter and, when a signer is configured, its
// signed anchor. It returns the snapshot id, a new one unless WithID is
// given.
func Save(ctx context.Context, store Store, tree *tct.Tree, opts ...Option) (uuid.UUID, error) {
	o := newOptions(opts...)
	id := o.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	data, err := tree.MarshalCBOR()
	if err != nil {
		return uuid.Nil, err
	}
	region, err := buildBloom(tree, o)
	if err != nil {
		return uuid.Nil, err
	}

	// the tree goes last so a reader never sees a tree without its prefilter
	if err := store.Put(ctx, ObjectKey(id, ObjectBloom), region); err != nil {
		return uuid.Nil, fmt.Errorf("put bloom: %w", err)
	}
	if o.Signer != nil {
		codec, err := anchor.NewCodec()
		if err != nil {
			return uuid.Nil, err
		}
		state := anchor.NewState(tree, id.String(), o.Now().UnixMilli())
		signed, err := anchor.NewSigner(codec).Sign1(o.Signer, o.KeyID, state, o.External)
		if err != nil {
			return uuid.Nil, fmt.Errorf("sign anchor: %w", err)
		}
		if err := store.Put(ctx, ObjectKey(id, ObjectAnchor), signed); err != nil {
			return uuid.Nil, fmt.Errorf("put anchor: %w", err)
		}
	}
	if err := store.Put(ctx, ObjectKey(id, ObjectTree), data); err != nil {
		return uuid.Nil, fmt.Errorf("put tree: %w", err)
	}

	o.infof("saved tree %s: %d bytes, %d witnessed", id, len(data), tree.WitnessedCount())
	return id, nil
}

func buildBloom(tree *tct.Tree, o Options) ([]byte, error) {
	n := uint64(tree.WitnessedCount())
	region, err := bloom.NewRegionV1(n, o.BloomBitsPerElement, bloom.OptimalK(o.BloomBitsPerElement), o.BloomFilters)
	if err != nil {
		return nil, err
	}
	tree.EachWitnessed(func(c tcthash.Commitment, pos tct.Position) {
		if err != nil {
			return
		}
		err = bloom.InsertV1(region, uint8(pos.Epoch%uint16(o.BloomFilters)), c[:])
	})
	return region, err
}

// tracker is implemented by stores whose writes are conditional on the
// version of each object last seen.
type tracker interface {
	Track(ctx context.Context, keys ...string) error
}

// Load restores the tree saved under id. hasher must be the hasher the tree
// was built with. Stores with conditional writes learn the version of every
// object of the snapshot, so a later Save under id overwrites exactly the
// snapshot that was loaded.
func Load(ctx context.Context, store Store, id uuid.UUID, hasher tcthash.Hasher, opts ...tct.Option) (*tct.Tree, error) {
	// Save writes the tree last, so it is read last
	if tr, ok := store.(tracker); ok {
		if err := tr.Track(ctx, ObjectKey(id, ObjectBloom), ObjectKey(id, ObjectAnchor)); err != nil {
			return nil, err
		}
	}
	data, err := store.Get(ctx, ObjectKey(id, ObjectTree))
	if err != nil {
		return nil, err
	}
	return tct.Unmarshal(data, append(opts, tct.WithHasher(hasher))...)
}

// MaybeWitnessed reports whether c may be witnessed by the snapshot id. A
// false result is definite, a true result must be confirmed with a witness
// from the loaded tree.
func MaybeWitnessed(ctx context.Context, store Store, id uuid.UUID, c tcthash.Commitment) (bool, error) {
	region, err := store.Get(ctx, ObjectKey(id, ObjectBloom))
	if err != nil {
		return false, err
	}
	return bloom.MaybeContainsAnyV1(region, c[:])
}

// LoadAnchor returns the signed anchor of snapshot id and its unverified
// state.
func LoadAnchor(ctx context.Context, store Store, id uuid.UUID) (*cose.Sign1Message, anchor.State, error) {
	data, err := store.Get(ctx, ObjectKey(id, ObjectAnchor))
	if errors.Is(err, ErrNotFound) {
		return nil, anchor.State{}, fmt.Errorf("%w: %s", ErrNoAnchor, id)
	}
	if err != nil {
		return nil, anchor.State{}, err
	}
	codec, err := anchor.NewCodec()
	if err != nil {
		return nil, anchor.State{}, err
	}
	return anchor.Decode(codec, data)
}

// VerifyAnchor checks the signed anchor of snapshot id against tree, which
// must be at the cursor recorded when the anchor was signed.
func VerifyAnchor(
	ctx context.Context, store Store, id uuid.UUID, tree *tct.Tree,
	publicKey crypto.PublicKey, external []byte,
) (anchor.State, error) {
	msg, state, err := LoadAnchor(ctx, store, id)
	if err != nil {
		return anchor.State{}, err
	}
	switch {
	case state.TreeID != id.String():
		return state, fmt.Errorf("%w: signed for tree %s", ErrAnchorMismatch, state.TreeID)
	case state.Height != tree.Height():
		return state, fmt.Errorf("%w: height %d, tree has %d", ErrAnchorMismatch, state.Height, tree.Height())
	case state.Position != anchor.CursorOf(tree):
		return state, fmt.Errorf("%w: signed at %+v, tree is at %+v", ErrAnchorMismatch, state.Position, anchor.CursorOf(tree))
	}

	root := tree.Root()
	state.Anchor = root[:]
	codec, err := anchor.NewCodec()
	if err != nil {
		return state, err
	}
	err = anchor.Verify(codec, anchor.NewPublicKeyProvider(msg, publicKey), msg, state, external)
	return state, err
}
