// Package tct implements the tiered commitment tree.
//
// The tree is three nested bounded 4-ary hash trees of the same height H:
//
//	               global tier (one leaf per epoch)
//	              /        |        |        \
//	   block tier (one leaf per block)  ...
//	  /     |      |     \
//	commitment tier (one leaf per commitment)
//
// Each tier holds up to 4^H leaves. A Position names a commitment by its
// epoch, block and commitment index. The root of the global tier is the
// anchor, and a Proof for a witnessed commitment is a path of 3H sibling
// triples from the commitment up to the anchor.
//
// Commitments that are no longer of interest can be forgotten. Forgetting
// discards the data needed to witness them but never changes any hash, so
// anchors published before the forget remain valid.
//
// Node heights are counted across the whole tree, so a tier of height H
// hashes its nodes at heights 1..H (commitment tier), H+1..2H (block tier) or
// 2H+1..3H (global tier):
//
//	height 3H                      anchor
//	...
//	height 2H          epoch root      epoch root
//	...
//	height H     block root   block root
//	...
//	height 1   node(c0 c1 c2 c3)
//	height 0   c0  c1  c2  c3       (Hasher.Leaf)
package tct
