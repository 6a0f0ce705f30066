// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"image"
	"os"
	"slices"

	"github.com/disintegration/imaging"
	"github.com/go-gota/gota/dataframe"
	"github.com/gomlx/metriclearn/pkg/ml/datasets/labels"
	"github.com/gomlx/metriclearn/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// PathColumns names the columns of the dataframe used by a PathSource.
type PathColumns struct {
	// Path of the image file, absolute or relative to the base directory.
	Path string

	// Label is the integer encoded label column.
	Label string

	// Encode is a string column to encode (see labels.EncodeStrings) when the Label column is missing.
	// Optional.
	Encode string

	// Aux is a string column with the auxiliary labels, returned with triplets. Optional.
	Aux string
}

var (
	// MakeColumns trains on the car make, with the model as auxiliary label.
	MakeColumns = PathColumns{Path: "path", Label: "make_encoded", Encode: "make", Aux: "model"}

	// ModelColumns trains on the car model, also the auxiliary label.
	ModelColumns = PathColumns{Path: "path", Label: "model_encoded", Encode: "model", Aux: "model"}
)

// PathSource is a Source of images stored in files, listed in a dataframe with their labels.
// Images are decoded on each access.
type PathSource struct {
	baseDir string
	paths   []string
	labels  labels.Ints[int]
	aux     []string
}

var _ Source = (*PathSource)(nil)

// ReadCSV reads a CSV file with a header into a dataframe.
func ReadCSV(filePath string) (dataframe.DataFrame, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(err, "failed to open CSV file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	df := dataframe.ReadCSV(f, dataframe.HasHeader(true))
	if df.Err != nil {
		return df, errors.Wrapf(df.Err, "failed to parse CSV file %q", filePath)
	}
	return df, nil
}

// NewPathSource creates a PathSource from the dataframe columns. Relative paths are resolved against baseDir,
// which may start with "~".
func NewPathSource(df dataframe.DataFrame, columns PathColumns, baseDir string) (*PathSource, error) {
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "invalid dataframe for PathSource")
	}
	names := df.Names()
	if !slices.Contains(names, columns.Path) {
		return nil, errors.Errorf("path column %q not found in dataframe with columns %q", columns.Path, names)
	}
	var err error
	ps := &PathSource{paths: df.Col(columns.Path).Records()}
	if baseDir != "" {
		if ps.baseDir, err = fsutil.ReplaceTildeInDir(baseDir); err != nil {
			return nil, err
		}
	}

	switch {
	case slices.Contains(names, columns.Label):
		ps.labels, err = labels.FromDataFrame(df, columns.Label)
		if err != nil {
			return nil, err
		}
		klog.V(1).Infof("PathSource: training on %q", columns.Label)
	case columns.Encode != "" && slices.Contains(names, columns.Encode):
		var vocabulary []string
		ps.labels, vocabulary, err = labels.EncodeStrings(df.Col(columns.Encode))
		if err != nil {
			return nil, err
		}
		klog.V(1).Infof("PathSource: training on %q, encoded to %d labels", columns.Encode, len(vocabulary))
	default:
		return nil, errors.Errorf("neither label column %q nor column %q to encode found in dataframe with columns %q",
			columns.Label, columns.Encode, names)
	}

	if columns.Aux != "" {
		if !slices.Contains(names, columns.Aux) {
			return nil, errors.Errorf("auxiliary label column %q not found in dataframe with columns %q",
				columns.Aux, names)
		}
		ps.aux = df.Col(columns.Aux).Records()
	}
	return ps, nil
}

// Len implements labels.Sequence.
func (ps *PathSource) Len() int { return len(ps.paths) }

// Label implements labels.Sequence.
func (ps *PathSource) Label(i int) int { return ps.labels[i] }

// Path returns the resolved path of the image file of example i.
func (ps *PathSource) Path(i int) (string, error) {
	return fsutil.ResolvePath(ps.baseDir, ps.paths[i])
}

// Image implements Source. The image is auto-oriented (EXIF) and converted to RGB (*image.NRGBA).
func (ps *PathSource) Image(i int) (image.Image, error) {
	if i < 0 || i >= len(ps.paths) {
		return nil, errors.Errorf("image index %d out of range [0, %d)", i, len(ps.paths))
	}
	imagePath, err := ps.Path(i)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load image #%d from %q", i, imagePath)
	}
	return imaging.Clone(img), nil
}

// AuxLabel implements AuxLabeler.
func (ps *PathSource) AuxLabel(i int) (string, bool) {
	if ps.aux == nil {
		return "", false
	}
	return ps.aux[i], true
}
