package afli

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexBulkLoadFindSequential(t *testing.T) {
	ix := New[int, string](WithMaxBackgroundWorkers(0))
	kvs := make([]KV[int, string], 2000)
	for i := range kvs {
		kvs[i] = KV[int, string]{Key: i, Value: fmt.Sprintf("v%d", i)}
	}
	ix.BulkLoad(kvs, nil)

	for i := 0; i < len(kvs); i += 17 {
		v, ok := ix.Find(i)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("v%d", i), v)
	}
	_, ok := ix.Find(-1)
	require.False(t, ok)
}

func TestIndexBulkLoadRejectsUnsorted(t *testing.T) {
	ix := New[int, string]()
	require.Panics(t, func() {
		ix.BulkLoad([]KV[int, string]{{2, "a"}, {1, "b"}}, nil)
	})
}

func TestIndexBulkLoadRejectsDuplicates(t *testing.T) {
	ix := New[int, string]()
	require.Panics(t, func() {
		ix.BulkLoad([]KV[int, string]{{1, "a"}, {1, "b"}}, nil)
	})
}

func TestIndexBulkLoadEmpty(t *testing.T) {
	ix := New[int, string]()
	ix.BulkLoad(nil, nil)
	_, ok := ix.Find(0)
	require.False(t, ok)
}

func TestIndexUpdateRemove(t *testing.T) {
	hp := DefaultHyperParameters()
	ix := New[int, string](WithHyperParameters(hp), WithMaxBackgroundWorkers(0))
	kvs := make([]KV[int, string], 500)
	for i := range kvs {
		kvs[i] = KV[int, string]{Key: i, Value: "orig"}
	}
	ix.BulkLoad(kvs, nil)

	require.True(t, ix.Update(250, "new"))
	v, ok := ix.Find(250)
	require.True(t, ok)
	require.Equal(t, "new", v)
	require.False(t, ix.Update(999_999, "x"))

	require.True(t, ix.Remove(250))
	_, ok = ix.Find(250)
	require.False(t, ok)
	require.False(t, ix.Remove(250))
}

func TestIndexInsertTriggersBackgroundRebuild(t *testing.T) {
	hp := DefaultHyperParameters()
	hp.MaxBucketSize = 4
	hp.MaxBackgroundWorkers = 2
	ix := New[int, int](WithHyperParameters(hp))
	kvs := make([]KV[int, int], 100)
	for i := range kvs {
		kvs[i] = KV[int, int]{Key: i * 2, Value: i * 2}
	}
	ix.BulkLoad(kvs, nil)

	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		key := i*2 + 1
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			ix.Insert(k, k)
		}(key)
	}
	wg.Wait()

	for i := 0; i < 500; i++ {
		key := i*2 + 1
		v, ok := ix.Find(key)
		require.True(t, ok, "key %d", key)
		require.Equal(t, key, v)
	}

	_, _, err := ix.Close(context.Background())
	require.NoError(t, err)
}

func TestIndexScanAlwaysEmpty(t *testing.T) {
	ix := New[int, int]()
	ix.BulkLoad([]KV[int, int]{{1, 1}, {2, 2}}, nil)
	require.Empty(t, ix.Scan(0, 10))
}

func TestIndexModelAndIndexSize(t *testing.T) {
	ix := New[int, int](WithMaxBackgroundWorkers(0))
	kvs := make([]KV[int, int], 1000)
	for i := range kvs {
		kvs[i] = KV[int, int]{Key: i, Value: i}
	}
	ix.BulkLoad(kvs, nil)
	require.Greater(t, ix.ModelSize(), uint64(0))
	require.GreaterOrEqual(t, ix.IndexSize(), ix.ModelSize())
}

func TestIndexDegenerateKeyspaceWithLargeOffset(t *testing.T) {
	hp := DefaultHyperParameters()
	ix := New[int64, int](WithHyperParameters(hp), WithMaxBackgroundWorkers(0))
	const offset = int64(1_000_000_000_000_000_000)
	kvs := make([]KV[int64, int], 64)
	for i := range kvs {
		kvs[i] = KV[int64, int]{Key: offset + int64(i), Value: i}
	}
	ix.BulkLoad(kvs, nil)
	for i := range kvs {
		v, ok := ix.Find(offset + int64(i))
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestIndexWithCalibratedTransformIsChosenWhenItReducesConflicts(t *testing.T) {
	hp := DefaultHyperParameters()
	// Two tight clusters far apart, so the untransformed fit concentrates
	// tail conflicts, while a calibration table that spreads the clusters
	// evenly should reduce them.
	n := 400
	keys := make([]int, 0, n)
	for i := 0; i < n/2; i++ {
		keys = append(keys, i)
	}
	for i := 0; i < n/2; i++ {
		keys = append(keys, 10_000_000+i)
	}
	sort.Ints(keys)

	calibKeys := append([]int{}, keys...)
	calibVals := make([]float64, len(keys))
	for i := range keys {
		calibVals[i] = float64(i)
	}
	tr := NewCalibratedTransform(calibKeys, calibVals)

	kvs := make([]KV[int, int], len(keys))
	for i, k := range keys {
		kvs[i] = KV[int, int]{Key: k, Value: k}
	}

	ix := New[int, int](WithHyperParameters(hp), WithMaxBackgroundWorkers(0))
	ix.BulkLoad(kvs, tr)
	require.True(t, ix.enableFlow)

	for _, k := range keys {
		v, ok := ix.Find(k)
		require.True(t, ok)
		require.Equal(t, k, v)
	}
}

func TestIndexConcurrentDisjointInserts(t *testing.T) {
	hp := DefaultHyperParameters()
	hp.MaxBucketSize = 6
	hp.MaxBackgroundWorkers = 4
	ix := New[int, int](WithHyperParameters(hp))

	const workers = 8
	const perWorker = 2000
	seed := make([]KV[int, int], workers)
	for w := 0; w < workers; w++ {
		seed[w] = KV[int, int]{Key: w * perWorker * 10, Value: w}
	}
	sort.Slice(seed, func(i, j int) bool { return seed[i].Key < seed[j].Key })
	ix.BulkLoad(seed, nil)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := w*perWorker*10 + 1
			rnd := rand.New(rand.NewSource(int64(w)))
			perm := rnd.Perm(perWorker - 1)
			for _, p := range perm {
				key := base + p
				ix.Insert(key, key)
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		base := w*perWorker*10 + 1
		for p := 0; p < perWorker-1; p += 97 {
			key := base + p
			v, ok := ix.Find(key)
			require.True(t, ok, "key %d", key)
			require.Equal(t, key, v)
		}
	}

	_, _, err := ix.Close(context.Background())
	require.NoError(t, err)
}
