// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mnist

import (
	"compress/gzip"
	"encoding/binary"
	"image"
	"os"
	"path"
	"testing"

	"github.com/gomlx/metriclearn/pkg/ml/datasets/pairing"
	"github.com/gomlx/metriclearn/pkg/ml/datasets/sampler"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGzip(t *testing.T, filePath string, header any, body []byte) {
	f, err := os.Create(filePath)
	require.NoError(t, err)
	w := gzip.NewWriter(f)
	require.NoError(t, binary.Write(w, binary.BigEndian, header))
	_, err = w.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// writeFixture writes a tiny test split with numImages 3x2 images, image i filled with value i and digit i%3.
func writeFixture(t *testing.T, numImages int) (baseDir string) {
	baseDir = t.TempDir()
	pixels := make([]byte, numImages*6)
	digits := make([]byte, numImages)
	for i := range numImages {
		for j := range 6 {
			pixels[i*6+j] = byte(i)
		}
		digits[i] = byte(i % 3)
	}
	writeGzip(t, path.Join(baseDir, files[Test][0]),
		imageFileHeader{Magic: imageMagic, NumImages: int32(numImages), Height: 2, Width: 3}, pixels)
	writeGzip(t, path.Join(baseDir, files[Test][1]),
		labelFileHeader{Magic: labelMagic, NumLabels: int32(numImages)}, digits)
	return
}

func TestLoad(t *testing.T) {
	baseDir := writeFixture(t, 12)
	src, err := Load(baseDir, Test)
	require.NoError(t, err)
	require.Equal(t, 12, src.Len())
	assert.Equal(t, 2, src.Label(5))
	img := must.M1(src.Image(7))
	require.IsType(t, &image.Gray{}, img)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	assert.Equal(t, uint8(7), img.(*image.Gray).GrayAt(2, 1).Y)

	// The loaded source feeds the sampler and the evaluation pairs directly.
	s := must.M1(sampler.New(src, 3, 2))
	assert.Equal(t, 2, s.Len())
	siamese := must.M1(pairing.NewSiamese[image.Image](src, nil, pairing.Config{}))
	assert.Equal(t, 12, siamese.Len())

	// Train files are missing.
	_, err = Load(baseDir, Train)
	assert.Error(t, err)
	_, err = Load(baseDir, "validation")
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	baseDir := writeFixture(t, 4)

	// Labels count doesn't match the images.
	writeGzip(t, path.Join(baseDir, files[Test][1]),
		labelFileHeader{Magic: labelMagic, NumLabels: 3}, []byte{0, 1, 2})
	_, err := Load(baseDir, Test)
	assert.Error(t, err)

	// Invalid digit.
	writeGzip(t, path.Join(baseDir, files[Test][1]),
		labelFileHeader{Magic: labelMagic, NumLabels: 4}, []byte{0, 1, 2, 10})
	_, err = Load(baseDir, Test)
	assert.Error(t, err)

	// Wrong magic number.
	writeGzip(t, path.Join(baseDir, files[Test][0]),
		imageFileHeader{Magic: labelMagic, NumImages: 4, Height: 2, Width: 3}, make([]byte, 24))
	_, err = Load(baseDir, Test)
	assert.Error(t, err)

	// Truncated images.
	writeGzip(t, path.Join(baseDir, files[Test][0]),
		imageFileHeader{Magic: imageMagic, NumImages: 4, Height: 2, Width: 3}, make([]byte, 20))
	_, err = Load(baseDir, Test)
	assert.Error(t, err)
}
