// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"github.com/gomlx/metriclearn/pkg/ml/datasets/mining"
	"github.com/pkg/errors"
)

// TripletExample holds the transformed anchor, positive and negative images, and the mined triplet.
//
// Labels holds the auxiliary labels of the anchor, positive and negative, if the source implements AuxLabeler,
// and it is empty otherwise.
type TripletExample[T any] struct {
	Inputs [3]T
	Labels []string
	mining.Triplet
}

// Triplet yields triplets of images for triplet networks (triplet loss).
//
// In training mode, a positive and a negative are drawn for each anchor on each access.
// In evaluation mode, the triplets are fixed with mining.Miner.FixedTriplets.
type Triplet[T any] struct {
	*base[T]
	triplets []mining.Triplet
}

// NewTriplet creates the triplet wrapper over source. A nil transform yields the decoded images as is.
//
// In training mode, it returns an error if some example has no positive or negative partner.
func NewTriplet[T any](source Source, transform Transform[T], config Config) (*Triplet[T], error) {
	b, err := newBase(source, transform, config, "Triplet")
	if err != nil {
		return nil, err
	}
	t := &Triplet[T]{base: b}
	if !b.train {
		t.triplets, err = b.miner.FixedTriplets(seedOrDefault(config.Seed))
		if err != nil {
			return nil, errors.WithMessagef(err, "%s failed to build evaluation triplets", b.name)
		}
	}
	return t, nil
}

// Len returns the number of examples: the size of the source.
func (t *Triplet[T]) Len() int {
	if t.train {
		return t.source.Len()
	}
	return len(t.triplets)
}

// Indices returns the triplet of example i: newly mined in training mode, fixed otherwise.
func (t *Triplet[T]) Indices(i int) (mining.Triplet, error) {
	if err := t.checkRange(i, t.Len()); err != nil {
		return mining.Triplet{}, err
	}
	if !t.train {
		return t.triplets[i], nil
	}
	t.muRng.Lock()
	defer t.muRng.Unlock()
	return t.miner.Triplet(t.rng, i)
}

// Get returns the triplet of example i with its images loaded and transformed.
// It can be used as a datasets.Getter.
func (t *Triplet[T]) Get(i int) (example TripletExample[T], err error) {
	example.Triplet, err = t.Indices(i)
	if err != nil {
		return
	}
	members := []int{example.Anchor, example.Positive, example.Negative}
	if err = t.loadAll(example.Inputs[:], members...); err != nil {
		return
	}
	if aux, ok := t.source.(AuxLabeler); ok {
		for _, member := range members {
			label, found := aux.AuxLabel(member)
			if !found {
				break
			}
			example.Labels = append(example.Labels, label)
		}
	}
	return
}
