// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package labels

import (
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIndex(t *testing.T) {
	idx, err := NewIndex(Ints[int8]{2, 0, 2, 1, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, 6, idx.Len())
	assert.Equal(t, 3, idx.NumLabels())
	assert.Equal(t, []int{0, 1, 2}, idx.Labels())
	assert.Equal(t, []int{1, 4}, idx.Members(0))
	assert.Equal(t, []int{3}, idx.Members(1))
	assert.Equal(t, []int{0, 2, 5}, idx.Members(2))
	assert.Equal(t, 3, idx.Count(2))
	assert.Equal(t, 0, idx.Count(7))

	// Union of members is the whole range, each position once, and Slot points back to it.
	seen := make([]bool, idx.Len())
	for _, label := range idx.Labels() {
		for slot, i := range idx.Members(label) {
			require.False(t, seen[i], "position %d indexed twice", i)
			seen[i] = true
			assert.Equal(t, label, idx.Label(i))
			assert.Equal(t, slot, idx.Slot(i))
		}
	}
	for i, ok := range seen {
		assert.True(t, ok, "position %d not indexed", i)
	}

	k, found := idx.LabelSlot(2)
	assert.True(t, found)
	assert.Equal(t, 2, k)
	assert.Equal(t, 2, idx.LabelAt(k))
	_, found = idx.LabelSlot(5)
	assert.False(t, found)

	label, count := idx.MinCount()
	assert.Equal(t, 1, label)
	assert.Equal(t, 1, count)

	// Labels() returns a copy.
	labels := idx.Labels()
	labels[0] = 100
	assert.Equal(t, 0, idx.LabelAt(0))
}

func TestNewIndexEmpty(t *testing.T) {
	_, err := NewIndex(Ints[int]{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmpty))
}

const carsCSV = `path,make,make_encoded,model
a.jpg,fiat,1,uno
b.jpg,audi,0,a4
c.jpg,fiat,1,palio
d.jpg,bmw,2,x1
`

func TestFromDataFrame(t *testing.T) {
	df := dataframe.ReadCSV(strings.NewReader(carsCSV))
	require.NoError(t, df.Err)

	encoded, err := FromDataFrame(df, "make_encoded")
	require.NoError(t, err)
	assert.Equal(t, Ints[int]{1, 0, 1, 2}, encoded)

	_, err = FromDataFrame(df, "model_encoded")
	require.Error(t, err)

	_, err = FromSeries(df.Col("make"))
	require.Error(t, err, "string column can't be used as integer labels")
}

func TestEncodeStrings(t *testing.T) {
	encoded, vocabulary, err := EncodeStrings(series.New([]string{"fiat", "audi", "fiat", "bmw"}, series.String, "make"))
	require.NoError(t, err)
	assert.Equal(t, []string{"audi", "bmw", "fiat"}, vocabulary)
	assert.Equal(t, Ints[int]{2, 0, 2, 1}, encoded)
	for i := range encoded.Len() {
		assert.Equal(t, []string{"fiat", "audi", "fiat", "bmw"}[i], vocabulary[encoded.Label(i)])
	}
}
