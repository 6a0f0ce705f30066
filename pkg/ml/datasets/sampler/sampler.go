// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sampler implements the BalancedBatchSampler: it yields batches of example indices with
// `numClasses` randomly chosen classes and `numSamples` examples of each.
//
// Each class keeps its own shuffled pool of examples and a cursor into it. An example is not repeated within its
// class until the pool runs low, at which point only that class' pool is reshuffled. This favors diversity within
// a class over strict epoch boundaries across the dataset.
//
// The iteration state lives in a Cursor, separate from the sampler: independent passes over the same sampler use
// independent cursors.
package sampler

import (
	"iter"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/gomlx/metriclearn/pkg/ml/datasets/labels"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrInvalidConfig is returned when the sampler configuration can't be satisfied by the labels.
var ErrInvalidConfig = errors.New("invalid balanced sampler configuration")

// BalancedBatchSampler yields batches of numClasses*numSamples example indices, see package documentation.
//
// The sampler itself is immutable after configuration, except for the random number generator used to seed new
// cursors, which is protected by a mutex.
type BalancedBatchSampler struct {
	index      *labels.Index
	numClasses int
	numSamples int

	muRng sync.Mutex
	rng   *rand.Rand
}

// New creates a BalancedBatchSampler from a sequence of labels, one per example.
//
// It returns an error wrapping ErrInvalidConfig if numClasses or numSamples are not positive, if numClasses is larger
// than the number of distinct labels, or if some class has fewer than numSamples examples.
//
// The sampler is seeded from the clock, use WithSeed or WithRand for reproducible batches.
func New(seq labels.Sequence, numClasses, numSamples int) (*BalancedBatchSampler, error) {
	index, err := labels.NewIndex(seq)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to index labels for BalancedBatchSampler")
	}
	return NewFromIndex(index, numClasses, numSamples)
}

// NewFromIndex creates a BalancedBatchSampler from an already built label index. See New.
func NewFromIndex(index *labels.Index, numClasses, numSamples int) (*BalancedBatchSampler, error) {
	if numClasses <= 0 || numSamples <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "numClasses (%d) and numSamples (%d) must be > 0", numClasses, numSamples)
	}
	if numClasses > index.NumLabels() {
		return nil, errors.Wrapf(ErrInvalidConfig, "numClasses=%d but there are only %d distinct labels",
			numClasses, index.NumLabels())
	}
	if label, count := index.MinCount(); count < numSamples {
		return nil, errors.Wrapf(ErrInvalidConfig, "label %d has only %d examples, fewer than numSamples=%d",
			label, count, numSamples)
	}
	seed := uint64(time.Now().UnixNano())
	s := &BalancedBatchSampler{
		index:      index,
		numClasses: numClasses,
		numSamples: numSamples,
		rng:        rand.New(rand.NewPCG(seed, seed)),
	}
	klog.V(1).Infof("BalancedBatchSampler: %d examples, %d labels, batches of %d classes x %d samples, %d batches per pass",
		index.Len(), index.NumLabels(), numClasses, numSamples, s.Len())
	return s, nil
}

// WithSeed resets the random number generator used to seed the cursors with the given seed.
// Two samplers with the same labels, configuration and seed yield the same batches.
//
// It returns the sampler, so calls can be cascaded.
func (s *BalancedBatchSampler) WithSeed(seed uint64) *BalancedBatchSampler {
	return s.WithRand(rand.New(rand.NewPCG(seed, seed)))
}

// WithRand sets the random number generator used to seed the cursors.
// A nil rng is ignored, and the current generator is kept.
//
// It returns the sampler, so calls can be cascaded.
func (s *BalancedBatchSampler) WithRand(rng *rand.Rand) *BalancedBatchSampler {
	if rng == nil {
		klog.Warningf("BalancedBatchSampler.WithRand(nil) ignored, keeping the current random number generator")
		return s
	}
	s.muRng.Lock()
	defer s.muRng.Unlock()
	s.rng = rng
	return s
}

// Index returns the label index used by the sampler.
func (s *BalancedBatchSampler) Index() *labels.Index { return s.index }

// NumClasses returns the number of classes in each batch.
func (s *BalancedBatchSampler) NumClasses() int { return s.numClasses }

// NumSamples returns the number of examples of each class in each batch.
func (s *BalancedBatchSampler) NumSamples() int { return s.numSamples }

// BatchSize is numClasses * numSamples.
func (s *BalancedBatchSampler) BatchSize() int { return s.numClasses * s.numSamples }

// Len returns the number of batches yielded by a full pass: the number of examples divided by the batch size.
func (s *BalancedBatchSampler) Len() int { return s.index.Len() / s.BatchSize() }

// Cursor holds the state of one pass of a BalancedBatchSampler: a shuffled pool of the examples of each class,
// how many of them were consumed, and the count of examples yielded so far.
//
// Invariant: 0 <= offset[label] <= len(pool[label]).
//
// A Cursor is not safe for concurrent use: each consumer should use its own (see BalancedBatchSampler.NewCursor and
// Cursor.Clone).
type Cursor struct {
	pools    map[int][]int
	offsets  map[int]int
	consumed int

	// classes is scratch space used to draw classes without replacement.
	classes []int

	pcg *rand.PCG
	rng *rand.Rand
}

// NewCursor starts a new pass: every class pool is shuffled from scratch and all offsets start at 0.
// The Label Index of the sampler is not modified.
func (s *BalancedBatchSampler) NewCursor() *Cursor {
	s.muRng.Lock()
	pcg := rand.NewPCG(s.rng.Uint64(), s.rng.Uint64())
	s.muRng.Unlock()

	c := &Cursor{
		pools:   make(map[int][]int, s.index.NumLabels()),
		offsets: make(map[int]int, s.index.NumLabels()),
		classes: s.index.Labels(),
		pcg:     pcg,
		rng:     rand.New(pcg),
	}
	// Labels are visited in sorted order, so the shuffles only depend on the seed.
	for _, label := range c.classes {
		pool := slices.Clone(s.index.Members(label))
		c.shuffle(pool)
		c.pools[label] = pool
		c.offsets[label] = 0
	}
	return c
}

// Clone returns an independent copy of the cursor, including its random number generator state:
// the clone yields the same batches as the original would.
func (c *Cursor) Clone() *Cursor {
	pcg := *c.pcg
	clone := &Cursor{
		pools:    make(map[int][]int, len(c.pools)),
		offsets:  make(map[int]int, len(c.offsets)),
		consumed: c.consumed,
		classes:  slices.Clone(c.classes),
		pcg:      &pcg,
	}
	clone.rng = rand.New(clone.pcg)
	for label, pool := range c.pools {
		clone.pools[label] = slices.Clone(pool)
		clone.offsets[label] = c.offsets[label]
	}
	return clone
}

// Consumed returns the number of example indices yielded so far in this pass.
func (c *Cursor) Consumed() int { return c.consumed }

// Offset returns how many examples of the label's current pool were already yielded.
func (c *Cursor) Offset(label int) int { return c.offsets[label] }

func (c *Cursor) shuffle(pool []int) {
	c.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
}

// drawClasses draws n distinct classes uniformly, with a partial Fisher-Yates shuffle of the scratch space.
func (c *Cursor) drawClasses(n int) []int {
	for i := range n {
		j := i + c.rng.IntN(len(c.classes)-i)
		c.classes[i], c.classes[j] = c.classes[j], c.classes[i]
	}
	return c.classes[:n]
}

// Next yields the next batch of the pass tracked by the cursor, or ok=false once fewer than BatchSize
// examples remain unconsumed in the dataset (counted globally, not per class).
//
// The batch holds numSamples indices of each of numClasses distinct classes, grouped by class. Classes
// are drawn without replacement within a batch, and may repeat across batches.
func (s *BalancedBatchSampler) Next(c *Cursor) (batch []int, ok bool) {
	batchSize := s.BatchSize()
	if c.consumed+batchSize > s.index.Len() {
		return nil, false
	}
	batch = make([]int, 0, batchSize)
	for _, label := range c.drawClasses(s.numClasses) {
		pool := c.pools[label]
		offset := c.offsets[label]
		batch = append(batch, pool[offset:offset+s.numSamples]...)
		offset += s.numSamples
		if len(pool)-offset < s.numSamples {
			// Not enough left for another draw of this class: start a new epoch for it.
			c.shuffle(pool)
			offset = 0
		}
		c.offsets[label] = offset
	}
	c.consumed += batchSize
	return batch, true
}

// All returns an iterator over one full pass, using a fresh Cursor. It yields exactly Len() batches.
func (s *BalancedBatchSampler) All() iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		c := s.NewCursor()
		for {
			batch, ok := s.Next(c)
			if !ok || !yield(batch) {
				return
			}
		}
	}
}
