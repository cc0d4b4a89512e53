package anchor

import "errors"

var (
	ErrNoAlgorithm  = errors.New("protected header has no algorithm")
	ErrNoKeyID      = errors.New("protected header has no key id")
	ErrBadSignature = errors.New("anchor signature does not verify")
)
