package anchor

import (
	"crypto/rand"

	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/veraison/go-cose"
)

// Signer produces COSE Sign1 messages over a State.
type Signer struct {
	codec dtcbor.CBORCodec
}

func NewSigner(codec dtcbor.CBORCodec) Signer {
	return Signer{codec: codec}
}

// Sign1 signs state and returns the encoded message with the anchor detached.
// Callers should only publish a state once they have checked the tree is
// consistent with the previously signed state.
func (s Signer) Sign1(coseSigner cose.Signer, keyID string, state State, external []byte) ([]byte, error) {
	payload, err := s.codec.MarshalCBOR(state)
	if err != nil {
		return nil, err
	}

	msg := cose.Sign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{
				cose.HeaderLabelAlgorithm: coseSigner.Algorithm(),
				cose.HeaderLabelKeyID:     []byte(keyID),
			},
		},
		Payload: payload,
	}
	if err = msg.Sign(rand.Reader, external, coseSigner); err != nil {
		return nil, err
	}

	state.Anchor = nil
	if msg.Payload, err = s.codec.MarshalCBOR(state); err != nil {
		return nil, err
	}
	return msg.MarshalCBOR()
}
