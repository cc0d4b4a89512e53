// Package tcthashtest holds a compliance suite for tcthash.Hasher implementations.
package tcthashtest

import (
	"sync"
	"testing"

	"github.com/forestrie/go-commitmenttree/tcthash"
	"github.com/stretchr/testify/require"
)

type HasherFactory func() tcthash.Hasher

func value(b byte) [tcthash.ValueBytes]byte {
	var v [tcthash.ValueBytes]byte
	v[0] = b
	v[tcthash.ValueBytes-1] = b ^ 0x5a
	return v
}

func TestHasherCompliance(t *testing.T, f HasherFactory) {
	t.Run("leaf is deterministic", func(t *testing.T) {
		t.Parallel()
		h := f()
		require.Equal(t, h.Leaf(value(1)), h.Leaf(value(1)))
	})

	t.Run("leaf respects value", func(t *testing.T) {
		t.Parallel()
		h := f()
		require.NotEqual(t, h.Leaf(value(1)), h.Leaf(value(2)))
	})

	t.Run("leaf is never the empty hash", func(t *testing.T) {
		t.Parallel()
		h := f()
		require.False(t, h.Leaf(tcthash.Commitment{}).IsZero())
	})

	t.Run("node is deterministic", func(t *testing.T) {
		t.Parallel()
		h := f()
		a, b, c, d := tcthash.Hash(value(1)), tcthash.Hash(value(2)), tcthash.Hash(value(3)), tcthash.Hash(value(4))
		require.Equal(t, h.Node(3, a, b, c, d), h.Node(3, a, b, c, d))
	})

	t.Run("node respects height", func(t *testing.T) {
		t.Parallel()
		h := f()
		a, b, c, d := tcthash.Hash(value(1)), tcthash.Hash(value(2)), tcthash.Hash(value(3)), tcthash.Hash(value(4))
		require.NotEqual(t, h.Node(1, a, b, c, d), h.Node(2, a, b, c, d))
	})

	t.Run("node respects child order", func(t *testing.T) {
		t.Parallel()
		h := f()
		a, b, c, d := tcthash.Hash(value(1)), tcthash.Hash(value(2)), tcthash.Hash(value(3)), tcthash.Hash(value(4))
		require.NotEqual(t, h.Node(1, a, b, c, d), h.Node(1, b, a, c, d))
		require.NotEqual(t, h.Node(1, a, b, c, d), h.Node(1, a, b, d, c))
	})

	t.Run("leaf and node are domain separated", func(t *testing.T) {
		t.Parallel()
		h := f()
		var zero tcthash.Hash
		require.NotEqual(t, h.Leaf(value(7)), h.Node(1, tcthash.Hash(value(7)), zero, zero, zero))
	})

	t.Run("concurrent use", func(t *testing.T) {
		t.Parallel()
		h := f()
		want := h.Node(5, h.Leaf(value(1)), h.Leaf(value(2)), tcthash.Hash{}, tcthash.Hash{})

		var wg sync.WaitGroup
		got := make([]tcthash.Hash, 8)
		for i := range got {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got[i] = h.Node(5, h.Leaf(value(1)), h.Leaf(value(2)), tcthash.Hash{}, tcthash.Hash{})
			}(i)
		}
		wg.Wait()
		for i := range got {
			require.Equal(t, want, got[i])
		}
	})
}
