// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"io"
	"sync"

	"github.com/gomlx/metriclearn/pkg/ml/datasets"
)

// Dataset adapts a BalancedBatchSampler to a datasets.Dataset of index batches.
//
// Each epoch is one pass with a fresh Cursor, so it yields exactly BalancedBatchSampler.Len() batches before io.EOF.
// Calls are serialized with a mutex, so it can be wrapped with datasets.Parallel (through datasets.Gather).
type Dataset struct {
	name     string
	sampler  *BalancedBatchSampler
	infinite bool

	muCursor sync.Mutex
	cursor   *Cursor
}

var _ datasets.Dataset[[]int] = (*Dataset)(nil)

// NewDataset creates a Dataset that yields the balanced batches of the sampler.
func NewDataset(name string, sampler *BalancedBatchSampler) *Dataset {
	return &Dataset{
		name:    name,
		sampler: sampler,
		cursor:  sampler.NewCursor(),
	}
}

// Infinite configures the dataset to start a new pass whenever one is exhausted, so it never returns io.EOF.
//
// It returns itself, to allow cascading configuration calls.
func (ds *Dataset) Infinite(infinite bool) *Dataset {
	ds.muCursor.Lock()
	defer ds.muCursor.Unlock()
	ds.infinite = infinite
	return ds
}

// Sampler returns the underlying sampler.
func (ds *Dataset) Sampler() *BalancedBatchSampler { return ds.sampler }

// Name implements datasets.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// Reset implements datasets.Dataset. It starts a new pass, with a fresh cursor.
func (ds *Dataset) Reset() {
	ds.muCursor.Lock()
	defer ds.muCursor.Unlock()
	ds.cursor = ds.sampler.NewCursor()
}

// Yield implements datasets.Dataset.
func (ds *Dataset) Yield() (batch []int, err error) {
	ds.muCursor.Lock()
	defer ds.muCursor.Unlock()
	var ok bool
	batch, ok = ds.sampler.Next(ds.cursor)
	if !ok && ds.infinite {
		ds.cursor = ds.sampler.NewCursor()
		batch, ok = ds.sampler.Next(ds.cursor)
	}
	if !ok {
		return nil, io.EOF
	}
	return batch, nil
}
