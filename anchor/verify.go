package anchor

import (
	"crypto"
	"fmt"
	"reflect"

	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/veraison/go-cose"
)

// KeyProvider supplies the key and algorithm used to check a signature.
type KeyProvider interface {
	PublicKey() (crypto.PublicKey, cose.Algorithm, error)
}

// PublicKeyProvider pairs a known public key with the algorithm named in the
// message's protected header.
type PublicKeyProvider struct {
	msg       *cose.Sign1Message
	publicKey crypto.PublicKey
}

func NewPublicKeyProvider(msg *cose.Sign1Message, publicKey crypto.PublicKey) *PublicKeyProvider {
	return &PublicKeyProvider{msg: msg, publicKey: publicKey}
}

func (p *PublicKeyProvider) PublicKey() (crypto.PublicKey, cose.Algorithm, error) {
	alg, err := p.msg.Headers.Protected.Algorithm()
	if err != nil {
		return nil, cose.Algorithm(0), fmt.Errorf("%w: %v", ErrNoAlgorithm, err)
	}
	return p.publicKey, alg, nil
}

// Decode splits a signed message into the message and its unverified state.
// The state has no anchor, see Verify.
func Decode(codec dtcbor.CBORCodec, data []byte) (*cose.Sign1Message, State, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		return nil, State{}, err
	}
	var state State
	if err := codec.UnmarshalInto(msg.Payload, &state); err != nil {
		return nil, State{}, err
	}
	return &msg, state, nil
}

// KeyID returns the key identifier from the protected header.
func KeyID(msg *cose.Sign1Message) (string, error) {
	v, ok := msg.Headers.Protected[cose.HeaderLabelKeyID]
	if !ok {
		return "", ErrNoKeyID
	}
	kid, ok := v.([]byte)
	if !ok {
		return "", fmt.Errorf("%w: key id is %s", ErrNoKeyID, reflect.TypeOf(v))
	}
	return string(kid), nil
}

// Verify checks msg against state. Verification is a three step process:
//
//  1. Decode the message to learn State.Position, the state returned does not
//     verify as its anchor was removed after signing.
//  2. Recompute the anchor of the tree at that position.
//  3. Set State.Anchor to the recomputed value and call Verify.
func Verify(codec dtcbor.CBORCodec, keys KeyProvider, msg *cose.Sign1Message, state State, external []byte) error {
	payload, err := codec.MarshalCBOR(state)
	if err != nil {
		return err
	}
	pub, alg, err := keys.PublicKey()
	if err != nil {
		return err
	}
	verifier, err := cose.NewVerifier(alg, pub)
	if err != nil {
		return err
	}

	// verify a copy so the caller's message keeps its detached payload
	signed := *msg
	signed.Payload = payload
	if err := signed.Verify(external, verifier); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}
