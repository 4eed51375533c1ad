package afli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketFindUpdateRemove(t *testing.T) {
	b := newBucket([]KV[int, string]{{1, "a"}, {2, "b"}, {3, "c"}}, 6, 0, 0)

	v, ok := b.find(2)
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok = b.find(99)
	require.False(t, ok)

	require.True(t, b.update(KV[int, string]{2, "bb"}))
	v, _ = b.find(2)
	require.Equal(t, "bb", v)
	require.False(t, b.update(KV[int, string]{99, "x"}))

	require.True(t, b.remove(1))
	require.Equal(t, uint8(2), b.len())
	_, ok = b.find(1)
	require.False(t, ok)
	require.False(t, b.remove(1))
}

func TestBucketInsertReportsSaturation(t *testing.T) {
	b := newBucket([]KV[int, int]{{1, 1}}, 3, 0, 0)
	require.False(t, b.insert(KV[int, int]{2, 2}, 3))
	require.True(t, b.insert(KV[int, int]{3, 3}, 3))
	require.Equal(t, uint8(3), b.len())
}

func TestBucketCopySortedOrdersByKey(t *testing.T) {
	b := newBucket([]KV[int, int]{{5, 5}, {1, 1}, {3, 3}}, 6, 0, 0)
	out := b.copySorted()
	require.Equal(t, []int{1, 3, 5}, []int{out[0].Key, out[1].Key, out[2].Key})
}
