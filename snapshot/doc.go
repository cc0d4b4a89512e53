// Package snapshot persists tiered commitment trees.
//
// A snapshot is stored as up to three objects under a common prefix:
//
//	tct/<tree-id>/tree    the CBOR encoded tree
//	tct/<tree-id>/bloom   a prefilter over the witnessed commitments
//	tct/<tree-id>/anchor  an optional COSE Sign1 over the anchor, detached
//
// The prefilter lets callers rule out commitments without fetching or decoding
// the tree.
package snapshot
