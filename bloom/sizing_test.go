package bloom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizingV1(t *testing.T) {
	require.NoError(t, CheckBPE(10))
	mBits64 := MBitsV1(1, 10)
	require.Equal(t, uint64(10), mBits64)
	mBits := MBitsSafeCast(mBits64)
	require.Equal(t, uint32(10), mBits)
	require.Equal(t, uint32(2), BitsetBytesV1(mBits))

	require.Equal(t, uint64(HeaderBytesV1+4*2), RegionBytesV1(mBits, 4))
	require.Equal(t, uint64(HeaderBytesV1+2), RegionBytesV1(mBits, 1))

	mBits2 := MBitsSafeCast(MBitsV1(8, 8)) // mBits=64, bitsetBytes=8, total=32+32=64
	require.Equal(t, uint32(64), mBits2)
	require.Equal(t, uint64(64), RegionBytesV1(mBits2, 4))
}

func TestSizingV1_MBbitsSafeCast(t *testing.T) {
	require.Equal(t, uint32(0), MBitsSafeCast(0))
	require.Equal(t, uint32(0), MBitsSafeCast(uint64(^uint32(0))+1))
	require.Equal(t, uint32(^uint32(0)), MBitsSafeCast(uint64(^uint32(0))))
}

func TestCheckBPE(t *testing.T) {
	require.ErrorIs(t, CheckBPE(0), ErrBadMBits)
	require.ErrorIs(t, CheckBPE(uint64(^uint32(0))+1), ErrMBitsOverflow)
}

func TestOptimalK(t *testing.T) {
	tests := []struct {
		bpe  uint64
		want uint8
	}{
		{1, 1},
		{8, 6},
		{10, 7},
		{16, 11},
		{1000, 255},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, OptimalK(tt.bpe), "bpe %d", tt.bpe)
	}
}
