// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"runtime"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/metriclearn/pkg/support/xsync"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ParallelDataset is a wrapper around a Dataset that parallelize calls to Yield.
// See details in CustomParallel.
type ParallelDataset[B any] struct {
	Dataset Dataset[B]

	// name is set by default to the underlying dataset name.
	name string

	// parallelism is the number of goroutines started generating batches.
	parallelism int

	// extraBufferSize is the size of the buffer of pre-generated batches.
	extraBufferSize int

	// impl is the actual implementation.
	impl *parallelDatasetImpl[B]

	// keepAlive is used only to keep ParallelDataset alive in the middle of long calls.
	keepAlive int64
}

// parallelDatasetImpl separates the implementation of ParallelDataset. It's important
// that it doesn't point back to the original ParallelDataset, so garbage collecting
// will also stop the goroutines.
type parallelDatasetImpl[B any] struct {
	config ParallelDataset[B] // A copy of the configuration.

	err   error
	muErr sync.Mutex

	buffer                                chan B
	epochFinished, stopEpoch, stopDataset chan struct{}
	stopped                               bool // stopDataset closed, protected by muErr.

	// epochDone is triggered when all the goroutines of the current epoch have exited.
	epochDone *xsync.Latch
}

// Parallel parallelizes yield calls of any thread-safe Dataset.
//
// It uses CustomParallel and automatically starts it with the default parameters.
//
// The order of the yields is not preserved: with a balanced sampler this doesn't change the composition
// of the batches, only the order in which they arrive.
//
// To avoid leaking goroutines, call ParallelDataset.Done when exiting.
//
// Example:
//
//	var ds datasets.Dataset[[]pairing.PairExample[*transforms.Float32Image]]
//	ds = datasets.Gather("train", sampler.NewDataset("train", s), siamese.Get)
//	ds = datasets.Parallel(ds)
//	MyTrainFunc(ds)
func Parallel[B any](ds Dataset[B]) *ParallelDataset[B] {
	pds := CustomParallel(ds)
	return pds.Buffer(pds.parallelism).Start()
}

// CustomParallel builds a ParallelDataset that can be used to parallelize any
// Dataset, as long as the underlying dataset ds is thread-safe.
//
// ParallelDataset can be further configured (see Parallelism and Buffer),
// and then one has to call Start before actually using the Dataset.
//
// To avoid leaking goroutines, call ParallelDataset.Done when exiting.
func CustomParallel[B any](ds Dataset[B]) *ParallelDataset[B] {
	pd := &ParallelDataset[B]{
		Dataset: ds,
		name:    ds.Name(),
	}
	pd.Parallelism(0) // 0 here means it will take the number of cores available.
	return pd
}

// Parallelism is the number of goroutines to start, each calling `ds.Yield()` in parallel
// to accelerate the generation of batches. If set to 0 (the default), it will use the
// number of cores in the system plus 1.
//
// This must be called before a call to Start.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset[B]) Parallelism(n int) *ParallelDataset[B] {
	if pd.impl != nil {
		exceptions.Panicf("ParallelDataset(%q): invalid configuration change after Start has been called", pd.name)
	}
	if n == 0 {
		n = runtime.NumCPU() + 1
	}
	pd.parallelism = n
	return pd
}

// WithName sets the name of the parallel dataset. It defaults to the original dataset name.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset[B]) WithName(name string) *ParallelDataset[B] {
	pd.name = name
	return pd
}

// Buffer reserved in the channel that collects the parallel yields.
// Notice there is already an intrinsic buffering that happens in the goroutines sampling
// in parallel.
//
// This must be called before a call to Start.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset[B]) Buffer(n int) *ParallelDataset[B] {
	if pd.impl != nil {
		exceptions.Panicf("ParallelDataset(%q): invalid configuration change after Start has been called", pd.name)
	}
	pd.extraBufferSize = n
	return pd
}

// Start indicates that the dataset is finished to be configured, and starts
// being a valid Dataset.
//
// After Start its configuration can no longer be changed.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset[B]) Start() *ParallelDataset[B] {
	if pd.impl != nil {
		exceptions.Panicf("ParallelDataset(%q).Start called more than once", pd.name)
	}
	impl := &parallelDatasetImpl[B]{
		buffer:      make(chan B, pd.extraBufferSize),
		stopDataset: make(chan struct{}),
		config:      *pd, // Copy.
	}
	pd.impl = impl
	// If the ParallelDataset is garbage collected, stop all parallel goroutines.
	runtime.SetFinalizer(pd, func(pd *ParallelDataset[B]) {
		if pd.impl != nil {
			pd.impl.stop(nil)
			pd.impl = nil
		}
	})
	impl.startGoRoutines()
	return pd
}

// stop closes stopDataset once, recording the first error.
func (impl *parallelDatasetImpl[B]) stop(err error) {
	impl.muErr.Lock()
	defer impl.muErr.Unlock()
	if impl.stopped {
		return
	}
	impl.stopped = true
	impl.err = err
	close(impl.stopDataset)
}

func (impl *parallelDatasetImpl[B]) startGoRoutines() {
	impl.epochFinished = make(chan struct{})
	impl.stopEpoch = make(chan struct{})
	impl.epochDone = xsync.NewLatch()
	var wg sync.WaitGroup
	for range impl.config.parallelism {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-impl.stopEpoch:
					return
				case <-impl.stopDataset:
					return
				default:
					// Move forward and generate the next batch.
				}
				batch, err := impl.config.Dataset.Yield()
				if err == io.EOF {
					return
				}
				if err != nil {
					klog.Errorf("Error: %+v", err)
					// Fatal error, stop everything.
					impl.stop(err)
					return
				}
				select {
				case <-impl.stopEpoch:
					return
				case <-impl.stopDataset:
					return
				case impl.buffer <- batch:
					// Batch generated and buffered, move to next.
				}
			}
		}()
	}

	// Start the controller job.
	epochDone := impl.epochDone
	go func() {
		defer epochDone.Trigger()
		wg.Wait()
		select {
		case <-impl.stopDataset:
			return
		default:
		}
		close(impl.epochFinished)
	}()
}

// Name implements Dataset.
func (pd *ParallelDataset[B]) Name() string {
	return pd.name
}

// Done stops the parallel dataset and waits for its goroutines to finish.
func (pd *ParallelDataset[B]) Done() {
	if pd.impl == nil {
		return
	}
	impl := pd.impl
	pd.impl = nil
	impl.stop(nil)
	impl.epochDone.Wait()
}

// Reset implements Dataset.
func (pd *ParallelDataset[B]) Reset() {
	impl := pd.impl
	if impl == nil {
		klog.Warningf("ParallelDataset.Reset was called before it was started with ParallelDataset.Start or after ParallelDataset.Done")
		return
	}

	// Indicate to goroutines to stop generating batches, and drain whatever is still in the buffer.
	close(impl.stopEpoch)
drainDataset:
	for {
		select {
		case <-impl.stopDataset:
			return
		case <-impl.epochFinished:
			break drainDataset
		case <-impl.buffer:
			// Discard remaining entries that were in the buffer.
		}
	}
	for len(impl.buffer) > 0 {
		<-impl.buffer
	}

	// Reset underlying dataset and start again.
	impl.config.Dataset.Reset()
	impl.startGoRoutines()

	// This no-op prevents `pd` from being garbage collected and the goroutines killed in the middle
	// of the Reset operation. Leave this at the end.
	pd.keepAlive++
}

// Yield implements Dataset.
func (pd *ParallelDataset[B]) Yield() (batch B, err error) {
	impl := pd.impl
	if impl == nil {
		err = errors.Errorf("ParallelDataset.Yield was called before it was started with ParallelDataset.Start or after it was stopped with ParallelDataset.Done")
		return
	}
	select {
	case <-impl.stopDataset:
		// An error occurred, dataset is closed.
		impl.muErr.Lock()
		err = impl.err
		impl.muErr.Unlock()
		if err == nil {
			err = errors.Errorf("ParallelDataset %q was stopped", pd.name)
		}
		return
	case batch = <-impl.buffer:
		// We got a new batch
	case <-impl.epochFinished:
		// No more batches being produced (until Reset() is called), but we still need to exhaust the buffer.
		select {
		case batch = <-impl.buffer:
		default:
			err = io.EOF
			return
		}
	}

	// This no-op prevents `pd` from being garbage collected and the goroutines killed in the middle
	// of the Yield operation. Leave this at the end.
	pd.keepAlive++
	return
}

// ReadAhead returns a Dataset that reads bufferSize batches of the given `ds`
// so that when Yield is called, the results are immediate.
//
// It uses ParallelDataset to implement it.
func ReadAhead[B any](ds Dataset[B], bufferSize int) Dataset[B] {
	if bufferSize <= 0 {
		return ds
	}
	return CustomParallel(ds).Parallelism(1).Buffer(bufferSize - 1).Start()
}
