package bloom

import (
	"crypto/sha256"
)

const bloomDomainV1 = 0xB0

// NewRegionV1 allocates and initializes a region sized for elemCount elements
// per filter.
func NewRegionV1(elemCount uint64, bitsPerElement uint64, k uint8, filters uint8) ([]byte, error) {
	if err := CheckBPE(bitsPerElement); err != nil {
		return nil, err
	}
	// an empty filter still needs a bit to hash into
	mBits := MBitsSafeCast(MBitsV1(max(elemCount, 1), bitsPerElement))
	if mBits == 0 {
		return nil, ErrMBitsOverflow
	}
	region := make([]byte, RegionBytesV1(mBits, filters))
	if err := InitV1(region, max(elemCount, 1), bitsPerElement, k, filters); err != nil {
		return nil, err
	}
	return region, nil
}

// InitV1 initializes a region with a HeaderV1 and empty filters.
//
// The caller must allocate region with at least RegionBytesV1(mBits, filters),
// where:
//
//	mBits = uint32(bitsPerElement * elemCount)
func InitV1(region []byte, elemCount uint64, bitsPerElement uint64, k uint8, filters uint8) error {
	if elemCount == 0 || bitsPerElement == 0 {
		return ErrBadMBits
	}
	if filters == 0 || filters > MaxFilters {
		return ErrBadFilters
	}
	if err := CheckBPE(bitsPerElement); err != nil {
		return err
	}
	mBits := MBitsSafeCast(MBitsV1(elemCount, bitsPerElement))
	if mBits == 0 {
		return ErrMBitsOverflow
	}
	need := RegionBytesV1(mBits, filters)
	if uint64(len(region)) < need {
		return ErrBadRegionSize
	}

	// Ensure clean initialization even if region is reused.
	clear(region[:need])

	return EncodeHeaderV1(region, HeaderV1{
		BitOrder: BitOrderLSB0,
		K:        k,
		Filters:  filters,
		MBits:    mBits,
	})
}

// InsertV1 inserts elem into filterIdx and increments NInserted in the header.
func InsertV1(region []byte, filterIdx uint8, elem []byte) error {
	h, bitset, err := filterV1(region, filterIdx, elem)
	if err != nil {
		return err
	}

	h1, h2 := hashPairV1(filterIdx, elem)
	setBitsLSB0(bitset, uint64(h.MBits), h.K, h1, h2)

	h.NInserted++
	return EncodeHeaderV1(region, h)
}

// MaybeContainsV1 checks membership for elem in filterIdx.
//
// Returns (false,nil) if the filter says "definitely not present".
// Returns (true,nil) if the filter says "maybe present".
func MaybeContainsV1(region []byte, filterIdx uint8, elem []byte) (bool, error) {
	h, bitset, err := filterV1(region, filterIdx, elem)
	if err != nil {
		return false, err
	}

	h1, h2 := hashPairV1(filterIdx, elem)
	return testBitsLSB0(bitset, uint64(h.MBits), h.K, h1, h2), nil
}

// MaybeContainsAnyV1 checks elem against every filter in the region.
func MaybeContainsAnyV1(region []byte, elem []byte) (bool, error) {
	h, ok, err := DecodeHeaderV1(region)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotInitialized
	}
	for i := uint8(0); i < h.Filters; i++ {
		found, err := MaybeContainsV1(region, i, elem)
		if err != nil || found {
			return found, err
		}
	}
	return false, nil
}

func filterV1(region []byte, filterIdx uint8, elem []byte) (HeaderV1, []byte, error) {
	if len(elem) != ValueBytes {
		return HeaderV1{}, nil, ErrBadElemSize
	}

	h, ok, err := DecodeHeaderV1(region)
	if err != nil {
		return HeaderV1{}, nil, err
	}
	if !ok {
		return HeaderV1{}, nil, ErrNotInitialized
	}

	off, err := filterBitsetOffV1(h, filterIdx)
	if err != nil {
		return HeaderV1{}, nil, err
	}
	end := uint64(off) + uint64(BitsetBytesV1(h.MBits))
	if uint64(len(region)) < end {
		return HeaderV1{}, nil, ErrBadRegionSize
	}
	return h, region[off:end], nil
}

func hashPairV1(filterIdx uint8, elem32 []byte) (h1 uint64, h2 uint64) {
	// SHA-256( 0xB0 || filterIdx || elem32 )
	var buf [1 + 1 + ValueBytes]byte
	buf[0] = bloomDomainV1
	buf[1] = filterIdx
	copy(buf[2:], elem32)
	sum := sha256.Sum256(buf[:])
	h1 = readU64BE(sum[0:8])
	h2 = readU64BE(sum[8:16])
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}

func setBitsLSB0(bitset []byte, mBits uint64, k uint8, h1, h2 uint64) {
	for i := uint64(0); i < uint64(k); i++ {
		j := (h1 + i*h2) % mBits
		bitset[j>>3] |= 1 << uint8(j&7)
	}
}

func testBitsLSB0(bitset []byte, mBits uint64, k uint8, h1, h2 uint64) bool {
	for i := uint64(0); i < uint64(k); i++ {
		j := (h1 + i*h2) % mBits
		if bitset[j>>3]&(1<<uint8(j&7)) == 0 {
			return false
		}
	}
	return true
}
