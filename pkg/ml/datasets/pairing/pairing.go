// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pairing wraps a labeled image Source into datasets of pairs (Siamese) or triplets (Triplet) of images,
// for metric-learning losses.
//
// In training mode every access mines a new random partner for the anchor. In evaluation mode the pairs
// (or triplets) are fixed once at construction from a seed, so repeated evaluations see the same examples.
//
// Both wrappers resolve one example per call to Get, so they are typically used with datasets.Gather, fed by
// index batches from the sampler package (training) or datasets.Sequential (evaluation):
//
//	src := must.M1(mnist.Load(baseDir, mnist.Train))
//	siamese := must.M1(pairing.NewSiamese[*transforms.Float32Image](src, transforms.ToFloat32(transforms.MNISTNormalization),
//		pairing.Config{Train: true}))
//	s := must.M1(sampler.New(src, 10, 8))
//	ds := datasets.Gather("train", sampler.NewDataset("train", s), siamese.Get)
package pairing

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gomlx/metriclearn/pkg/ml/datasets/labels"
	"github.com/gomlx/metriclearn/pkg/ml/datasets/mining"
	"github.com/pkg/errors"
)

// Config of a Siamese or Triplet wrapper.
type Config struct {
	// Train selects online mining (a new random partner per access). Otherwise the pairs/triplets are fixed once,
	// from Seed.
	Train bool

	// Seed of the fixed pairs/triplets in evaluation mode. If 0, mining.DefaultSeed is used.
	Seed uint64

	// Rand is the random number generator used in training mode. If nil, one seeded from the clock is used.
	// It is only used under the wrapper's lock.
	Rand *rand.Rand

	// Name of the wrapper, used in error messages.
	Name string
}

// base holds what Siamese and Triplet have in common.
type base[T any] struct {
	name      string
	source    Source
	transform Transform[T]
	miner     *mining.Miner
	train     bool

	muRng sync.Mutex
	rng   *rand.Rand
}

func newBase[T any](source Source, transform Transform[T], config Config, defaultName string) (*base[T], error) {
	index, err := labels.NewIndex(source)
	if err != nil {
		return nil, err
	}
	b := &base[T]{
		name:      config.Name,
		source:    source,
		transform: transform,
		miner:     mining.NewMiner(index),
		train:     config.Train,
		rng:       config.Rand,
	}
	if b.name == "" {
		b.name = defaultName
	}
	if b.train {
		if err = b.miner.CheckPairable(); err != nil {
			return nil, errors.WithMessagef(err, "%s can't mine training examples", b.name)
		}
		if b.rng == nil {
			seed := uint64(time.Now().UnixNano())
			b.rng = rand.New(rand.NewPCG(seed, seed))
		}
	}
	return b, nil
}

func seedOrDefault(seed uint64) uint64 {
	if seed == 0 {
		return mining.DefaultSeed
	}
	return seed
}

// Name of the wrapper.
func (b *base[T]) Name() string { return b.name }

// Train returns whether the wrapper mines online (training) or uses fixed examples (evaluation).
func (b *base[T]) Train() bool { return b.train }

// Miner used by the wrapper.
func (b *base[T]) Miner() *mining.Miner { return b.miner }

// load the image of example i and transform it.
func (b *base[T]) load(i int) (value T, err error) {
	img, err := b.source.Image(i)
	if err != nil {
		return value, errors.WithMessagef(err, "%s failed to load example #%d", b.name, i)
	}
	value, err = b.transform.apply(img)
	if err != nil {
		return value, errors.WithMessagef(err, "%s failed to transform example #%d", b.name, i)
	}
	return value, nil
}

// loadAll loads each of the examples into values.
func (b *base[T]) loadAll(values []T, examples ...int) error {
	for ii, example := range examples {
		var err error
		if values[ii], err = b.load(example); err != nil {
			return err
		}
	}
	return nil
}

func (b *base[T]) checkRange(i, n int) error {
	if i < 0 || i >= n {
		return errors.Errorf("%s: index %d out of range [0, %d)", b.name, i, n)
	}
	return nil
}
