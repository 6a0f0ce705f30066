// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mining

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/metriclearn/pkg/ml/datasets/labels"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiner(seq labels.Sequence) *Miner {
	return NewMiner(must.M1(labels.NewIndex(seq)))
}

var testLabels = labels.Ints[int]{3, 1, 3, 2, 1, 1, 2, 3, 7, 7, 2, 1, 3}

func TestOnlineDraws(t *testing.T) {
	m := newMiner(testLabels)
	require.NoError(t, m.CheckPairable())
	idx := m.Index()
	rng := rand.New(rand.NewPCG(42, 42))
	positives := make(map[int]int)
	for range 1000 {
		for anchor := range idx.Len() {
			p, err := m.Positive(rng, anchor)
			require.NoError(t, err)
			require.NotEqual(t, anchor, p)
			require.Equal(t, idx.Label(anchor), idx.Label(p))
			if anchor == 8 || anchor == 9 {
				// Label 7 has only the two of them.
				require.Equal(t, 17-anchor, p)
			}
			positives[p]++

			n, err := m.Negative(rng, anchor)
			require.NoError(t, err)
			require.NotEqual(t, idx.Label(anchor), idx.Label(n))

			pair, err := m.Pair(rng, anchor)
			require.NoError(t, err)
			require.Equal(t, anchor, pair.Anchor)
			if pair.Target == TargetPositive {
				require.NotEqual(t, anchor, pair.Partner)
				require.Equal(t, idx.Label(anchor), idx.Label(pair.Partner))
			} else {
				require.Equal(t, TargetNegative, pair.Target)
				require.NotEqual(t, idx.Label(anchor), idx.Label(pair.Partner))
			}

			triplet, err := m.Triplet(rng, anchor)
			require.NoError(t, err)
			require.Equal(t, anchor, triplet.Anchor)
			require.NotEqual(t, anchor, triplet.Positive)
			require.Equal(t, idx.Label(anchor), idx.Label(triplet.Positive))
			require.NotEqual(t, idx.Label(anchor), idx.Label(triplet.Negative))
		}
	}
	// Every example is drawn as someone's positive.
	assert.Len(t, positives, idx.Len())
}

func TestPreconditions(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))

	m := newMiner(labels.Ints[int]{0, 0, 1})
	err := m.CheckPairable()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSingletonClass))
	_, err = m.Positive(rng, 2)
	assert.True(t, errors.Is(err, ErrSingletonClass))
	_, err = m.Positive(rng, 0)
	assert.NoError(t, err)
	_, err = m.Triplet(rng, 2)
	assert.True(t, errors.Is(err, ErrSingletonClass))

	m = newMiner(labels.Ints[int]{4, 4, 4})
	err = m.CheckPairable()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSingleLabel))
	_, err = m.Negative(rng, 0)
	assert.True(t, errors.Is(err, ErrSingleLabel))
	_, err = m.FixedPairs(DefaultSeed)
	assert.True(t, errors.Is(err, ErrSingleLabel))
}

func TestFixedPairs(t *testing.T) {
	m := newMiner(testLabels)
	pairs := must.M1(m.FixedPairs(DefaultSeed))
	require.Len(t, pairs, testLabels.Len())

	// Positive-anchored pairs on even anchors first, then negative-anchored pairs on odd anchors.
	numEven := (testLabels.Len() + 1) / 2
	for ii, pair := range pairs {
		if ii < numEven {
			require.Equal(t, 2*ii, pair.Anchor)
			require.Equal(t, TargetPositive, pair.Target)
			require.NotEqual(t, pair.Anchor, pair.Partner)
			require.Equal(t, testLabels.Label(pair.Anchor), testLabels.Label(pair.Partner))
		} else {
			require.Equal(t, 2*(ii-numEven)+1, pair.Anchor)
			require.Equal(t, TargetNegative, pair.Target)
			require.NotEqual(t, testLabels.Label(pair.Anchor), testLabels.Label(pair.Partner))
		}
	}

	// Reproducible across independent constructions.
	other := newMiner(testLabels)
	assert.Equal(t, pairs, must.M1(other.FixedPairs(DefaultSeed)))
	assert.Equal(t, pairs, must.M1(m.FixedPairs(DefaultSeed)))
}

func TestFixedTriplets(t *testing.T) {
	m := newMiner(testLabels)
	triplets := must.M1(m.FixedTriplets(DefaultSeed))
	require.Len(t, triplets, testLabels.Len())
	for anchor, triplet := range triplets {
		require.Equal(t, anchor, triplet.Anchor)
		require.NotEqual(t, anchor, triplet.Positive)
		require.Equal(t, testLabels.Label(anchor), testLabels.Label(triplet.Positive))
		require.NotEqual(t, testLabels.Label(anchor), testLabels.Label(triplet.Negative))
	}
	assert.Equal(t, triplets, must.M1(newMiner(testLabels).FixedTriplets(DefaultSeed)))

	// A different seed gives a different set, with overwhelming probability.
	var differs bool
	for seed := uint64(0); seed < 5 && !differs; seed++ {
		other := must.M1(m.FixedTriplets(seed))
		for ii := range other {
			if other[ii] != triplets[ii] {
				differs = true
				break
			}
		}
	}
	assert.True(t, differs)
}
