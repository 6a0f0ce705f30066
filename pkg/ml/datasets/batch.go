// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"fmt"
	"io"
	"sync"

	"github.com/gomlx/exceptions"
)

// batchedDataset implements Dataset and re-batches the items yielded by the source dataset.
//
// See details in Batch, the function used to create it.
type batchedDataset[E any] struct {
	ds Dataset[[]E] // Source Dataset.

	batchSize           int
	dropIncompleteBatch bool

	mu     sync.Mutex // Protects buffer and exhausted.
	buffer []E

	// exhausted is set once ds returned io.EOF, until Reset.
	exhausted bool
}

// Batch creates a dataset that concatenates the items yielded by `ds` and splits them into batches of size
// `batchSize`. Items that don't fit in a batch are kept for the next one.
//
// It can be used to build larger batches out of several balanced batches (e.g. for more negatives per anchor),
// or to fix the batch size of a dataset of single items.
//
// Args:
//   - `ds`: the dataset to be re-batched.
//   - `batchSize`: size of each batch, except when there are no more examples, in which
//     case batches can be smaller (except if `dropIncompleteBatch` was selected).
//   - `dropIncompleteBatch`: at the end of an epoch, if there are not enough examples to fill a
//     batch, and this is set to true, the last batch is dropped. Otherwise, it returns only
//     a partial batch. Usually desirable for evaluation, but not desirable for training.
func Batch[E any](ds Dataset[[]E], batchSize int, dropIncompleteBatch bool) Dataset[[]E] {
	if batchSize <= 0 {
		exceptions.Panicf("datasets.Batch(%q) requires batchSize > 0, got %d", ds.Name(), batchSize)
	}
	return &batchedDataset[E]{
		ds:                  ds,
		batchSize:           batchSize,
		dropIncompleteBatch: dropIncompleteBatch,
	}
}

// Name implements Dataset. It returns the dataset name.
func (ds *batchedDataset[E]) Name() string {
	return fmt.Sprintf("%s [Batch %d]", ds.ds.Name(), ds.batchSize)
}

// Reset implements Dataset.
func (ds *batchedDataset[E]) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.buffer = nil
	ds.exhausted = false
	ds.ds.Reset()
}

// Yield implements Dataset.
func (ds *batchedDataset[E]) Yield() (batch []E, err error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for len(ds.buffer) < ds.batchSize && !ds.exhausted {
		var items []E
		items, err = ds.ds.Yield()
		if err == io.EOF {
			ds.exhausted = true
			break
		}
		if err != nil {
			return nil, err
		}
		ds.buffer = append(ds.buffer, items...)
	}
	err = nil
	if len(ds.buffer) == 0 || (len(ds.buffer) < ds.batchSize && ds.dropIncompleteBatch) {
		ds.buffer = nil
		return nil, io.EOF
	}

	// Return the batch: in case this is the last one, and dropIncompleteBatch == false, it
	// may be a partial batch.
	size := min(ds.batchSize, len(ds.buffer))
	batch = make([]E, size)
	copy(batch, ds.buffer)
	ds.buffer = ds.buffer[size:]
	return batch, nil
}
