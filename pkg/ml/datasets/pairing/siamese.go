// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"github.com/gomlx/metriclearn/pkg/ml/datasets/mining"
	"github.com/pkg/errors"
)

// PairExample is a pair of transformed images (anchor first) and the mined pair. Its Target is
// mining.TargetPositive if both share the label, mining.TargetNegative otherwise.
type PairExample[T any] struct {
	Inputs [2]T
	mining.Pair
}

// Siamese yields pairs of images for siamese networks (contrastive loss).
//
// In training mode, for each anchor the target is drawn uniformly, and the partner is drawn accordingly.
// In evaluation mode, the pairs are fixed with mining.Miner.FixedPairs.
type Siamese[T any] struct {
	*base[T]
	pairs []mining.Pair
}

// NewSiamese creates the siamese wrapper over source. A nil transform yields the decoded images as is.
//
// In training mode, it returns an error if some example has no positive or negative partner.
func NewSiamese[T any](source Source, transform Transform[T], config Config) (*Siamese[T], error) {
	b, err := newBase(source, transform, config, "Siamese")
	if err != nil {
		return nil, err
	}
	s := &Siamese[T]{base: b}
	if !b.train {
		s.pairs, err = b.miner.FixedPairs(seedOrDefault(config.Seed))
		if err != nil {
			return nil, errors.WithMessagef(err, "%s failed to build evaluation pairs", b.name)
		}
	}
	return s, nil
}

// Len returns the number of examples: the size of the source.
func (s *Siamese[T]) Len() int {
	if s.train {
		return s.source.Len()
	}
	return len(s.pairs)
}

// Indices returns the pair of example i: newly mined in training mode, fixed otherwise.
func (s *Siamese[T]) Indices(i int) (mining.Pair, error) {
	if err := s.checkRange(i, s.Len()); err != nil {
		return mining.Pair{}, err
	}
	if !s.train {
		return s.pairs[i], nil
	}
	s.muRng.Lock()
	defer s.muRng.Unlock()
	return s.miner.Pair(s.rng, i)
}

// Get returns the pair of example i with its images loaded and transformed.
// It can be used as a datasets.Getter.
func (s *Siamese[T]) Get(i int) (example PairExample[T], err error) {
	example.Pair, err = s.Indices(i)
	if err != nil {
		return
	}
	err = s.loadAll(example.Inputs[:], example.Anchor, example.Partner)
	return
}
