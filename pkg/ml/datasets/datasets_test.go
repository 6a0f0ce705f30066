// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDS struct {
	count atomic.Int64
}

var (
	testDSMaxValue = int64(10000)
)

func (ds *testDS) Name() string { return "testDS" }
func (ds *testDS) Reset()       { ds.count.Store(0) }
func (ds *testDS) Yield() (batch []int64, err error) {
	value := ds.count.Add(1)
	if value > testDSMaxValue {
		err = io.EOF
		return
	}
	batch = []int64{value}
	return
}

// TestParallelDataset with and without buffer.
func TestParallelDataset(t *testing.T) {
	for _, bufferSize := range []int{0, 10} {
		ds := &testDS{}
		pDS := CustomParallel[[]int64](ds).Parallelism(0).Buffer(bufferSize).Start()
		count := int64(0)
		for {
			batch, err := pDS.Yield()
			if err == io.EOF {
				break
			}
			require.NoError(t, err, "Test failed with unexpected error")
			require.Len(t, batch, 1, "Expected Dataset to yield 1 value")
			count++
		}
		require.Equalf(t, testDSMaxValue, count, "Number of yielded batches first loop, bufferSize=%d.", bufferSize)
		count = 0
		pDS.Reset()
		for {
			batch, err := pDS.Yield()
			if err == io.EOF {
				break
			}
			require.NoError(t, err, "Test failed with unexpected error")
			require.Len(t, batch, 1, "Expected Dataset to yield 1 value")
			count++
		}
		require.Equalf(t, testDSMaxValue, count, "Number of yielded batches at second loop, bufferSize=%d.", bufferSize)
		pDS.Done()
		_, err := pDS.Yield()
		require.Error(t, err, "Yield after Done should fail")
	}
}

type failingDS struct{ testDS }

func (ds *failingDS) Yield() (batch []int64, err error) {
	batch, err = ds.testDS.Yield()
	if err == nil && batch[0] == 100 {
		err = errors.New("corrupted example")
	}
	return
}

func TestParallelDatasetError(t *testing.T) {
	pDS := Parallel[[]int64](&failingDS{})
	var err error
	for err == nil {
		_, err = pDS.Yield()
	}
	require.NotEqual(t, io.EOF, err)
	assert.ErrorContains(t, err, "corrupted example")
	pDS.Done()
}

func TestParallelDatasetConfigAfterStart(t *testing.T) {
	pDS := CustomParallel[[]int64](&testDS{}).Parallelism(2).Start()
	defer pDS.Done()
	require.Panics(t, func() { pDS.Parallelism(4) })
	require.Panics(t, func() { pDS.Buffer(4) })
	require.Panics(t, func() { pDS.Start() })
}

func TestSequential(t *testing.T) {
	ds := Sequential("eval", 10, 4, false)
	batches, err := Collect(ds)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9}}, batches)

	// Exhausted until Reset.
	_, err = ds.Yield()
	require.Equal(t, io.EOF, err)
	ds.Reset()
	batches, err = Collect(ds)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	ds = Sequential("eval", 10, 4, true)
	batches, err = Collect(ds)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}}, batches)

	require.Panics(t, func() { Sequential("bad", 10, 0, false) })
}

func TestGatherAndTake(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	get := func(index int) (string, error) {
		if index >= len(names) {
			return "", errors.Errorf("no example %d", index)
		}
		return names[index], nil
	}
	ds := Gather("letters", Sequential("idx", 5, 2, false), get)
	assert.Equal(t, "letters", ds.Name())
	batches, err := Collect(ds)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, batches)

	taken := Take(ds, 1)
	taken.Reset()
	batches, err = Collect(taken)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, batches)

	// Errors from the getter are propagated with the index.
	ds = Gather("letters", Sequential("idx", 7, 7, false), get)
	_, err = ds.Yield()
	require.Error(t, err)
	assert.ErrorContains(t, err, "no example 5")
}

func TestReadAhead(t *testing.T) {
	ds := ReadAhead(Sequential("idx", 9, 3, false), 2)
	batches, err := Collect(ds)
	require.NoError(t, err)
	// A single goroutine preserves order.
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}}, batches)
	ds.(*ParallelDataset[[]int]).Done()

	plain := Sequential("idx", 3, 3, false)
	assert.Same(t, plain, ReadAhead(plain, 0))
	flat, err := Collect(plain)
	require.NoError(t, err)
	assert.True(t, slices.Equal([]int{0, 1, 2}, flat[0]))
}

func TestBatch(t *testing.T) {
	// 10 indices yielded 3 at a time, re-batched 4 at a time.
	ds := Batch(Sequential("idx", 10, 3, false), 4, false)
	assert.Equal(t, "idx [Batch 4]", ds.Name())
	batches, err := Collect(ds)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9}}, batches)
	_, err = ds.Yield()
	require.Equal(t, io.EOF, err)

	ds = Batch(Sequential("idx", 10, 3, false), 4, true)
	batches, err = Collect(ds)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}}, batches)

	// Larger batches out of smaller ones, after a Reset.
	ds = Batch(Sequential("idx", 6, 2, false), 6, true)
	_, _ = Collect(ds)
	ds.Reset()
	batches, err = Collect(ds)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2, 3, 4, 5}}, batches)

	require.Panics(t, func() { Batch(Sequential("idx", 6, 2, false), 0, true) })
}
