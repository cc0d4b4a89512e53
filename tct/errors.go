package tct

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded = errors.New("tct: tier capacity exceeded")
	ErrNotWitnessed     = errors.New("tct: position is not witnessed")
	ErrAlreadyFinalized = errors.New("tct: tier already finalized")
	ErrInvalidPosition  = errors.New("tct: position was never issued")

	ErrBlockFull = fmt.Errorf("%w: block is full", ErrCapacityExceeded)
	ErrEpochFull = fmt.Errorf("%w: epoch is full", ErrCapacityExceeded)
	ErrTreeFull  = fmt.Errorf("%w: tree is full", ErrCapacityExceeded)

	ErrBadHeight         = errors.New("tct: tier height must be between 1 and 8")
	ErrHeightMismatch    = errors.New("tct: tier heights differ")
	ErrDecode            = errors.New("tct: malformed tree encoding")
	ErrVerifyProofFailed = errors.New("tct: proof does not reproduce the anchor")
)
