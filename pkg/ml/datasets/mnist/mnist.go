// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mnist downloads and loads the MNIST database of handwritten digits as a pairing.Source, to train
// and evaluate siamese and triplet networks on it.
package mnist

import (
	"compress/gzip"
	"context"
	"encoding/binary"
	"io"
	"net/url"
	"os"
	"path"

	"github.com/gomlx/metriclearn/pkg/ml/datasets/downloader"
	"github.com/gomlx/metriclearn/pkg/ml/datasets/labels"
	"github.com/gomlx/metriclearn/pkg/ml/datasets/pairing"
	"github.com/gomlx/metriclearn/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	DownloadURL = "https://storage.googleapis.com/cvdf-datasets/mnist"

	Width         = 28
	Height        = 28
	NumClasses    = 10
	TrainExamples = 60000
	TestExamples  = 10000

	imageMagic = 0x00000803
	labelMagic = 0x00000801
)

// Mode selects the train or test split.
type Mode string

const (
	Train Mode = "train"
	Test  Mode = "test"
)

// files of each split: images and labels.
var files = map[Mode][2]string{
	Train: {"train-images-idx3-ubyte.gz", "train-labels-idx1-ubyte.gz"},
	Test:  {"t10k-images-idx3-ubyte.gz", "t10k-labels-idx1-ubyte.gz"},
}

type imageFileHeader struct {
	Magic     int32
	NumImages int32
	Height    int32
	Width     int32
}

type labelFileHeader struct {
	Magic     int32
	NumLabels int32
}

// Download the MNIST files to baseDir, if they are not there yet.
func Download(ctx context.Context, baseDir string, showProgressBar bool) error {
	baseDir, err := fsutil.ReplaceTildeInDir(baseDir)
	if err != nil {
		return err
	}
	for _, mode := range []Mode{Train, Test} {
		for _, file := range files[mode] {
			fileURL, err := url.JoinPath(DownloadURL, file)
			if err != nil {
				return errors.Wrapf(err, "invalid MNIST url for %q", file)
			}
			if err = downloader.DownloadIfMissing(ctx, fileURL, path.Join(baseDir, file), "", showProgressBar); err != nil {
				return errors.WithMessagef(err, "failed to download MNIST file %q", file)
			}
		}
	}
	return nil
}

// Load the images and labels of the split from baseDir.
// The images are *image.Gray: 0 is the background and 255 the digit.
func Load(baseDir string, mode Mode) (*pairing.InMemory, error) {
	modeFiles, found := files[mode]
	if !found {
		return nil, errors.Errorf("unknown MNIST mode %q, use %q or %q", mode, Train, Test)
	}
	baseDir, err := fsutil.ReplaceTildeInDir(baseDir)
	if err != nil {
		return nil, err
	}
	pixels, width, height, err := loadImageFile(path.Join(baseDir, modeFiles[0]))
	if err != nil {
		return nil, err
	}
	digits, err := loadLabelFile(path.Join(baseDir, modeFiles[1]))
	if err != nil {
		return nil, err
	}
	src, err := pairing.FromGrayPixels(pixels, width, height, labels.Ints[uint8](digits))
	if err != nil {
		return nil, errors.WithMessagef(err, "MNIST %s images and labels don't match", mode)
	}
	klog.V(1).Infof("MNIST %s: %d images of %dx%d", mode, src.Len(), width, height)
	return src, nil
}

// openGzip opens the gzip compressed file. Closing the returned reader closes the file.
func openGzip(filePath string) (io.ReadCloser, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open MNIST file")
	}
	reader, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "failed to uncompress MNIST file %q", filePath)
	}
	return &gzipFile{Reader: reader, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if fErr := g.f.Close(); err == nil {
		err = fErr
	}
	return err
}

// loadImageFile returns all the pixels of the images, contiguously.
func loadImageFile(filePath string) (pixels []uint8, width, height int, err error) {
	reader, err := openGzip(filePath)
	if err != nil {
		return
	}
	defer func() { _ = reader.Close() }()
	var header imageFileHeader
	if err = binary.Read(reader, binary.BigEndian, &header); err != nil {
		err = errors.Wrapf(err, "failed to read header of MNIST images file %q", filePath)
		return
	}
	if header.Magic != imageMagic || header.NumImages < 0 || header.Width <= 0 || header.Height <= 0 {
		err = errors.Errorf("invalid MNIST images file %q: header %+v", filePath, header)
		return
	}
	width, height = int(header.Width), int(header.Height)
	pixels = make([]uint8, int(header.NumImages)*width*height)
	if _, err = io.ReadFull(reader, pixels); err != nil {
		err = errors.Wrapf(err, "failed to read %d images from MNIST file %q", header.NumImages, filePath)
		return
	}
	return
}

// loadLabelFile returns the digit of each image.
func loadLabelFile(filePath string) ([]uint8, error) {
	reader, err := openGzip(filePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	var header labelFileHeader
	if err = binary.Read(reader, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrapf(err, "failed to read header of MNIST labels file %q", filePath)
	}
	if header.Magic != labelMagic || header.NumLabels < 0 {
		return nil, errors.Errorf("invalid MNIST labels file %q: header %+v", filePath, header)
	}
	digits := make([]uint8, header.NumLabels)
	if _, err = io.ReadFull(reader, digits); err != nil {
		return nil, errors.Wrapf(err, "failed to read %d labels from MNIST file %q", header.NumLabels, filePath)
	}
	for ii, digit := range digits {
		if digit >= NumClasses {
			return nil, errors.Errorf("invalid digit %d for example #%d in MNIST file %q", digit, ii, filePath)
		}
	}
	return digits, nil
}
