package bloom

/*

# Bloom prefilters for witnessed commitments

This package provides primitive building blocks for Bloom filters stored as a
single flat byte region, so that a snapshot can carry a prefilter answering
"was this commitment witnessed?" without decoding the tree.

- small, composable functions
- explicit byte layouts
- index arithmetic on byte slices

## What Bloom filters are (and are not)

Bloom filters provide a *probabilistic prefilter*:

- If the filter says "definitely not present", then the element is not present.
- If the filter says "maybe present", then the element may or may not be present
  (false positives are possible).

Bloom filters are NOT cryptographic commitments and do not provide proofs of
exclusion. A "maybe present" answer must be confirmed with a witness from the
tree itself.

## Parallel filters

A region holds between 1 and MaxFilters parallel filters, each indexing 32-byte
commitments. Callers choose the filter for an element, the snapshot package
shards by epoch. All filters share identical sizing and are stored side by
side:

	+----------------------+  32B header (magic, version, params)
	| HeaderV1             |
	+----------------------+  bitset bytes (filter 0)
	| filter0 bitset       |
	+----------------------+
	| ...                  |
	+----------------------+  bitset bytes (filter n-1)
	| filter(n-1) bitset   |
	+----------------------+

## Indexing and bit numbering

Bit indices are derived by double hashing,

	h1, h2 = SHA-256(0xB0 || filterIdx || elem)[0:8], [8:16]
	bit_i  = (h1 + i*h2) mod mBits, for i in [0, k)

and bit j lives at byte j>>3, bit j&7 counting from the least significant bit.

## API versioning

Functions are suffixed with the format version they implement (InitV1,
InsertV1, MaybeContainsV1). An incompatible layout gets a V2 side by side so
previously persisted regions keep decoding.

*/
