package bloom

import "math"

// CheckBPE validates bitsPerElement for safe sizing computations.
func CheckBPE(bitsPerElement uint64) error {
	if bitsPerElement == 0 {
		return ErrBadMBits
	}
	if bitsPerElement > uint64(^uint32(0)) {
		return ErrMBitsOverflow
	}
	return nil
}

// MBitsV1 returns mBits64 = bitsPerElement * elemCount.
//
// The caller is responsible for ensuring:
//   - elemCount > 0
//   - bitsPerElement > 0
//   - bitsPerElement <= uint64(^uint32(0))
//
// CheckBPE can be used to check these conditions.
func MBitsV1(elemCount uint64, bitsPerElement uint64) uint64 {
	return bitsPerElement * elemCount
}

// MBitsSafeCast returns mBits as uint32, or 0 if it is not safe to downcast.
func MBitsSafeCast(mBits64 uint64) uint32 {
	if mBits64 == 0 || mBits64 > uint64(^uint32(0)) {
		return 0
	}
	return uint32(mBits64)
}

// OptimalK returns round(bitsPerElement * ln 2) clamped to [1, 255], the
// number of hash functions minimising the false positive rate.
func OptimalK(bitsPerElement uint64) uint8 {
	k := math.Round(float64(bitsPerElement) * math.Ln2)
	switch {
	case k < 1:
		return 1
	case k > 255:
		return 255
	}
	return uint8(k)
}

// BitsetBytesV1 returns ceil(mBits/8).
func BitsetBytesV1(mBits uint32) uint32 {
	return (mBits + 7) / 8
}

// RegionBytesV1 returns the required byte length for a region given mBits and
// the filter count:
//
//	HeaderBytesV1 + filters*ceil(mBits/8)
func RegionBytesV1(mBits uint32, filters uint8) uint64 {
	bitsetBytes := uint64(BitsetBytesV1(mBits))
	return uint64(HeaderBytesV1) + uint64(filters)*bitsetBytes
}

func filterBitsetOffV1(h HeaderV1, filterIdx uint8) (uint32, error) {
	if filterIdx >= h.Filters {
		return 0, ErrBadFilterIndex
	}
	return uint32(HeaderBytesV1) + uint32(filterIdx)*BitsetBytesV1(h.MBits), nil
}
