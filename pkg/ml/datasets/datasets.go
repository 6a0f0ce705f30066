// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package datasets is a collection of utility datasets that can be combined to feed metric-learning training:
// `Sequential` and `Gather` to turn batches of example indices into batches of examples, `Take`, `Parallel` and
// `ReadAhead`.
//
// Balanced index batches are produced by the sampler sub-package, and pairs/triplets of examples by the
// pairing sub-package.
package datasets

import (
	"fmt"
	"io"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/metriclearn/pkg/support/xslices"
	"github.com/pkg/errors"
)

// Dataset yields batches of type B, until the end of an epoch.
type Dataset[B any] interface {
	// Name identifies the dataset. Used for debugging and pretty-printing.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// for instance when running another evaluation on a test dataset.
	Reset()

	// Yield one batch, or io.EOF when the epoch is exhausted, or some other error.
	Yield() (batch B, err error)
}

// takeDataset implements a Dataset that only yields `take` batches.
type takeDataset[B any] struct {
	ds          Dataset[B]
	mu          sync.Mutex
	count, take int
}

// Take returns a wrapper to `ds`, a Dataset that only yields `n` batches.
func Take[B any](ds Dataset[B], n int) Dataset[B] {
	return &takeDataset[B]{
		ds:   ds,
		take: n,
	}
}

// Name implements Dataset. It returns the dataset name.
func (ds *takeDataset[B]) Name() string {
	return fmt.Sprintf("%s [Take %d]", ds.ds.Name(), ds.take)
}

// Reset implements Dataset.
func (ds *takeDataset[B]) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.ds.Reset()
	ds.count = 0
}

// Yield implements Dataset.
func (ds *takeDataset[B]) Yield() (batch B, err error) {
	ds.mu.Lock()
	if ds.count >= ds.take {
		ds.mu.Unlock()
		err = io.EOF
		return
	}
	ds.count++
	ds.mu.Unlock()
	return ds.ds.Yield()
}

// sequentialDataset yields the indices [0, n) in order, in batches.
type sequentialDataset struct {
	name                string
	n, batchSize        int
	dropIncompleteBatch bool

	mu   sync.Mutex
	next int
}

// Sequential returns a Dataset of index batches that goes over the indices [0, n) in order, `batchSize` at a time.
// If dropIncompleteBatch is true, a last batch smaller than batchSize is not yielded.
//
// It is the evaluation counterpart of the balanced sampler: every example is visited exactly once per epoch.
// It is safe for concurrent use.
func Sequential(name string, n, batchSize int, dropIncompleteBatch bool) Dataset[[]int] {
	if batchSize <= 0 {
		exceptions.Panicf("datasets.Sequential(%q) requires batchSize > 0, got %d", name, batchSize)
	}
	return &sequentialDataset{
		name:                name,
		n:                   n,
		batchSize:           batchSize,
		dropIncompleteBatch: dropIncompleteBatch,
	}
}

// Name implements Dataset.
func (ds *sequentialDataset) Name() string { return ds.name }

// Reset implements Dataset.
func (ds *sequentialDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.next = 0
}

// Yield implements Dataset.
func (ds *sequentialDataset) Yield() (batch []int, err error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	size := min(ds.batchSize, ds.n-ds.next)
	if size <= 0 || (size < ds.batchSize && ds.dropIncompleteBatch) {
		err = io.EOF
		return
	}
	batch = xslices.Iota(ds.next, size)
	ds.next += size
	return
}

// Getter resolves an example index into an item, e.g. a mined pair of images.
type Getter[S any] func(index int) (S, error)

// gatherDataset implements Dataset by resolving each index of the batches yielded by indices.
type gatherDataset[S any] struct {
	name    string
	indices Dataset[[]int]
	get     Getter[S]
}

// Gather returns a Dataset that, for each batch of indices yielded by `indices`, yields the batch of items
// returned by `get` for each index, in the same order.
//
// It holds no state of its own: it is safe for concurrent use (e.g. with Parallel) as long as `indices` and
// `get` are.
func Gather[S any](name string, indices Dataset[[]int], get Getter[S]) Dataset[[]S] {
	return &gatherDataset[S]{
		name:    name,
		indices: indices,
		get:     get,
	}
}

// Name implements Dataset.
func (ds *gatherDataset[S]) Name() string { return ds.name }

// Reset implements Dataset.
func (ds *gatherDataset[S]) Reset() { ds.indices.Reset() }

// Yield implements Dataset.
func (ds *gatherDataset[S]) Yield() (batch []S, err error) {
	var indices []int
	indices, err = ds.indices.Yield()
	if err != nil {
		return
	}
	batch = make([]S, len(indices))
	for ii, index := range indices {
		batch[ii], err = ds.get(index)
		if err != nil {
			err = errors.WithMessagef(err, "dataset %q failed to gather example #%d", ds.name, index)
			return nil, err
		}
	}
	return
}

// Collect yields all the batches of ds until io.EOF and returns them.
// Don't use it with datasets that loop indefinitely.
func Collect[B any](ds Dataset[B]) ([]B, error) {
	var batches []B
	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			return batches, nil
		}
		if err != nil {
			return batches, err
		}
		batches = append(batches, batch)
	}
}
