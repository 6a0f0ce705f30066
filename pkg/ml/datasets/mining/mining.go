// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mining draws positive and negative partners for anchor examples, to build the pairs and triplets
// used by siamese and triplet losses.
//
// Draws come in two flavors:
//
//   - Online (training): Positive, Negative, Pair and Triplet take a live random number generator, so every
//     access gives a different partner.
//   - Fixed (evaluation): FixedPairs and FixedTriplets compute the whole set once from a seed, and return the
//     same set for the same seed and labels.
//
// Draws never retry: the positive partner is a single bounded draw among the other members of the anchor's class.
package mining

import (
	"math/rand/v2"

	"github.com/gomlx/metriclearn/pkg/ml/datasets/labels"
	"github.com/pkg/errors"
)

// DefaultSeed is the seed used for the fixed evaluation pairs and triplets, when none is given.
const DefaultSeed = 29

var (
	// ErrSingletonClass is returned when a positive partner is requested for an anchor whose class has no
	// other member.
	ErrSingletonClass = errors.New("class has fewer than 2 examples, no positive partner available")

	// ErrSingleLabel is returned when a negative partner is requested but there is only one distinct label.
	ErrSingleLabel = errors.New("fewer than 2 distinct labels, no negative partner available")
)

// Targets of a Pair.
const (
	TargetNegative = 0
	TargetPositive = 1
)

// Pair of examples, and whether they share the same label (Target == TargetPositive).
type Pair struct {
	Anchor, Partner int
	Target          int
}

// Triplet of examples: Positive shares the Anchor's label, Negative doesn't.
type Triplet struct {
	Anchor, Positive, Negative int
}

// Miner draws partners from a labels.Index.
// It holds no mutable state, and it is safe for concurrent use as long as each goroutine uses its own rng.
type Miner struct {
	index *labels.Index
}

// NewMiner creates a Miner over the label index.
func NewMiner(index *labels.Index) *Miner {
	return &Miner{index: index}
}

// Index returns the label index used by the miner.
func (m *Miner) Index() *labels.Index { return m.index }

// CheckPairable returns an error if some draw could fail: if there are fewer than 2 distinct labels
// (ErrSingleLabel) or some class has a single example (ErrSingletonClass).
func (m *Miner) CheckPairable() error {
	if m.index.NumLabels() < 2 {
		return errors.Wrapf(ErrSingleLabel, "labels index has %d distinct label(s)", m.index.NumLabels())
	}
	if label, count := m.index.MinCount(); count < 2 {
		return errors.Wrapf(ErrSingletonClass, "label %d has %d example(s)", label, count)
	}
	return nil
}

// Positive draws uniformly an example with the same label as the anchor, other than the anchor itself.
func (m *Miner) Positive(rng *rand.Rand, anchor int) (int, error) {
	label := m.index.Label(anchor)
	members := m.index.Members(label)
	if len(members) < 2 {
		return 0, errors.Wrapf(ErrSingletonClass, "anchor %d has label %d", anchor, label)
	}
	k := rng.IntN(len(members) - 1)
	if k >= m.index.Slot(anchor) {
		k++
	}
	return members[k], nil
}

// Negative draws uniformly a label different from the anchor's, and then uniformly an example of that label.
//
// Notice examples are not drawn uniformly among all negatives: each other label is equally likely, regardless of
// how many examples it has.
func (m *Miner) Negative(rng *rand.Rand, anchor int) (int, error) {
	numLabels := m.index.NumLabels()
	if numLabels < 2 {
		return 0, errors.Wrapf(ErrSingleLabel, "anchor %d", anchor)
	}
	anchorSlot, _ := m.index.LabelSlot(m.index.Label(anchor))
	k := rng.IntN(numLabels - 1)
	if k >= anchorSlot {
		k++
	}
	members := m.index.Members(m.index.LabelAt(k))
	return members[rng.IntN(len(members))], nil
}

// Pair draws the target uniformly (positive or negative), and then the partner accordingly.
func (m *Miner) Pair(rng *rand.Rand, anchor int) (pair Pair, err error) {
	pair = Pair{Anchor: anchor, Target: rng.IntN(2)}
	if pair.Target == TargetPositive {
		pair.Partner, err = m.Positive(rng, anchor)
	} else {
		pair.Partner, err = m.Negative(rng, anchor)
	}
	return
}

// Triplet draws a positive and then a negative for the anchor.
func (m *Miner) Triplet(rng *rand.Rand, anchor int) (triplet Triplet, err error) {
	triplet.Anchor = anchor
	if triplet.Positive, err = m.Positive(rng, anchor); err != nil {
		return
	}
	triplet.Negative, err = m.Negative(rng, anchor)
	return
}

// FixedPairs computes the evaluation pairs: a positive pair for every even anchor, followed by a negative pair for
// every odd anchor. All draws come from one generator seeded with seed, so the result only depends on the seed
// and on the labels.
func (m *Miner) FixedPairs(seed uint64) ([]Pair, error) {
	rng := rand.New(rand.NewPCG(seed, seed))
	n := m.index.Len()
	pairs := make([]Pair, 0, n)
	for anchor := 0; anchor < n; anchor += 2 {
		partner, err := m.Positive(rng, anchor)
		if err != nil {
			return nil, errors.WithMessage(err, "while building fixed positive pairs")
		}
		pairs = append(pairs, Pair{Anchor: anchor, Partner: partner, Target: TargetPositive})
	}
	for anchor := 1; anchor < n; anchor += 2 {
		partner, err := m.Negative(rng, anchor)
		if err != nil {
			return nil, errors.WithMessage(err, "while building fixed negative pairs")
		}
		pairs = append(pairs, Pair{Anchor: anchor, Partner: partner, Target: TargetNegative})
	}
	return pairs, nil
}

// FixedTriplets computes one triplet per example, each example being the anchor of its triplet, with
// all draws from one generator seeded with seed.
func (m *Miner) FixedTriplets(seed uint64) ([]Triplet, error) {
	rng := rand.New(rand.NewPCG(seed, seed))
	triplets := make([]Triplet, m.index.Len())
	for anchor := range triplets {
		var err error
		triplets[anchor], err = m.Triplet(rng, anchor)
		if err != nil {
			return nil, errors.WithMessage(err, "while building fixed triplets")
		}
	}
	return triplets, nil
}
