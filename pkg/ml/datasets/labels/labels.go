// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package labels indexes the labels of a dataset: for each label, the ordered positions of the examples
// that carry it.
//
// Any indexable label collection can be used through the Sequence interface: plain integer slices (see Ints),
// gota series and dataframe columns (see FromSeries and FromDataFrame) or string columns encoded with
// EncodeStrings.
package labels

import (
	"slices"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// ErrEmpty is returned when trying to index an empty label sequence.
var ErrEmpty = errors.New("empty label sequence")

// Sequence is an indexable sequence of integer labels, one per example of a dataset.
type Sequence interface {
	// Len returns the number of examples.
	Len() int

	// Label returns the label of example i, for 0 <= i < Len().
	Label(i int) int
}

// Ints adapts a slice of any integer type to a Sequence.
type Ints[T constraints.Integer] []T

var _ Sequence = Ints[int8](nil)

// Len implements Sequence.
func (s Ints[T]) Len() int { return len(s) }

// Label implements Sequence.
func (s Ints[T]) Label(i int) int { return int(s[i]) }

// Index maps each label to the positions of the examples that carry it, in ascending order.
//
// The union of all members is exactly the range [0, Len()), each position once.
// It is immutable after construction, and safe for concurrent reads.
type Index struct {
	labels    []int
	labelSlot map[int]int
	members   map[int][]int

	// of holds the label of each position, and slot its position within members[label].
	of, slot []int
}

var _ Sequence = (*Index)(nil)

// NewIndex scans the label sequence once and builds its Index.
// It returns ErrEmpty if the sequence has no examples.
func NewIndex(seq Sequence) (*Index, error) {
	n := seq.Len()
	if n == 0 {
		return nil, errors.WithStack(ErrEmpty)
	}
	idx := &Index{
		members: make(map[int][]int),
		of:      make([]int, n),
		slot:    make([]int, n),
	}
	for i := range n {
		label := seq.Label(i)
		idx.of[i] = label
		idx.slot[i] = len(idx.members[label])
		idx.members[label] = append(idx.members[label], i)
	}
	idx.labels = make([]int, 0, len(idx.members))
	for label := range idx.members {
		idx.labels = append(idx.labels, label)
	}
	slices.Sort(idx.labels)
	idx.labelSlot = make(map[int]int, len(idx.labels))
	for k, label := range idx.labels {
		idx.labelSlot[label] = k
	}
	return idx, nil
}

// Len returns the number of indexed examples.
func (idx *Index) Len() int { return len(idx.of) }

// Label returns the label of example i.
func (idx *Index) Label(i int) int { return idx.of[i] }

// NumLabels returns the number of distinct labels.
func (idx *Index) NumLabels() int { return len(idx.labels) }

// Labels returns a copy of the distinct labels, in ascending order.
func (idx *Index) Labels() []int { return slices.Clone(idx.labels) }

// LabelAt returns the k-th distinct label (in ascending order), for 0 <= k < NumLabels().
func (idx *Index) LabelAt(k int) int { return idx.labels[k] }

// LabelSlot returns the position of label among the sorted distinct labels, and whether the label exists.
func (idx *Index) LabelSlot(label int) (k int, found bool) {
	k, found = idx.labelSlot[label]
	return
}

// Members returns the positions of the examples with the given label, in ascending order.
// The returned slice is owned by the Index and must not be modified: clone it before shuffling.
func (idx *Index) Members(label int) []int { return idx.members[label] }

// Count returns how many examples carry the label.
func (idx *Index) Count(label int) int { return len(idx.members[label]) }

// Slot returns the position of example i within Members(Label(i)).
func (idx *Index) Slot(i int) int { return idx.slot[i] }

// MinCount returns the label with the fewest examples and its count.
// Ties are broken by the smallest label.
func (idx *Index) MinCount() (label, count int) {
	label, count = idx.labels[0], len(idx.members[idx.labels[0]])
	for _, l := range idx.labels[1:] {
		if c := len(idx.members[l]); c < count {
			label, count = l, c
		}
	}
	return
}
