// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package labels

import (
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gomlx/metriclearn/pkg/support/sets"
	"github.com/pkg/errors"
)

// FromSeries converts an integer (or integer valued) gota series to a label Sequence.
func FromSeries(s series.Series) (Ints[int], error) {
	if s.Err != nil {
		return nil, errors.Wrapf(s.Err, "invalid labels series %q", s.Name)
	}
	values, err := s.Int()
	if err != nil {
		return nil, errors.Wrapf(err, "labels series %q is not integer", s.Name)
	}
	return values, nil
}

// FromDataFrame returns the column of the dataframe as a label Sequence.
func FromDataFrame(df dataframe.DataFrame, column string) (Ints[int], error) {
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "invalid dataframe")
	}
	if !slices.Contains(df.Names(), column) {
		return nil, errors.Errorf("labels column %q not found in dataframe with columns %q", column, df.Names())
	}
	return FromSeries(df.Col(column))
}

// EncodeStrings maps each distinct value of a string series to its rank among the sorted distinct values.
// It returns the encoded labels and the vocabulary, such that vocabulary[encoded.Label(i)] is the original value.
//
// It can be used to derive an integer label column (e.g. "make_encoded") from a string one (e.g. "make").
func EncodeStrings(s series.Series) (encoded Ints[int], vocabulary []string, err error) {
	if s.Err != nil {
		return nil, nil, errors.Wrapf(s.Err, "invalid series %q", s.Name)
	}
	records := s.Records()
	distinct := sets.Make[string]()
	distinct.Insert(records...)
	vocabulary = sets.Sorted(distinct)
	ranks := make(map[string]int, len(vocabulary))
	for rank, value := range vocabulary {
		ranks[value] = rank
	}
	encoded = make(Ints[int], len(records))
	for ii, value := range records {
		encoded[ii] = ranks[value]
	}
	return
}
