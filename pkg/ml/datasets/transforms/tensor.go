// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"image"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Normalization of the pixel values, after they are scaled to [0, 1]: (value - Mean[c]) / Std[c] for channel c.
//
// Channels is either 1 (luminance only) or 3 (RGB); the alpha channel is always dropped.
type Normalization struct {
	Channels  int
	Mean, Std [3]float32
}

var (
	// NoNormalization keeps the RGB values in [0, 1].
	NoNormalization = Normalization{Channels: 3, Mean: [3]float32{0, 0, 0}, Std: [3]float32{1, 1, 1}}

	// ImageNetNormalization is the usual normalization of backbones pretrained on ImageNet.
	ImageNetNormalization = Normalization{
		Channels: 3,
		Mean:     [3]float32{0.485, 0.456, 0.406},
		Std:      [3]float32{0.229, 0.224, 0.225},
	}

	// MNISTNormalization is the usual normalization of the (gray) MNIST digits.
	MNISTNormalization = Normalization{Channels: 1, Mean: [3]float32{0.1307}, Std: [3]float32{0.3081}}
)

func (n Normalization) validate() error {
	if n.Channels != 1 && n.Channels != 3 {
		return errors.Errorf("normalization must have 1 or 3 channels, got %d", n.Channels)
	}
	for c := range n.Channels {
		if n.Std[c] == 0 {
			return errors.Errorf("normalization has 0 standard deviation for channel %d", c)
		}
	}
	return nil
}

// Float32Image is an image as a flat buffer shaped [Height, Width, Channels].
type Float32Image struct {
	Height, Width, Channels int
	Data                    []float32
}

// At returns the value of channel c of the pixel at row y, column x.
func (img *Float32Image) At(y, x, c int) float32 {
	return img.Data[(y*img.Width+x)*img.Channels+c]
}

// Float16Image is an image as a flat buffer of half-precision floats shaped [Height, Width, Channels].
type Float16Image struct {
	Height, Width, Channels int
	Data                    []float16.Float16
}

// At returns the value of channel c of the pixel at row y, column x.
func (img *Float16Image) At(y, x, c int) float16.Float16 {
	return img.Data[(y*img.Width+x)*img.Channels+c]
}

// forEachValue calls fn with the normalized value of each channel of each pixel, in [height, width, channels] order.
func forEachValue(img image.Image, norm Normalization, fn func(pos int, value float32)) {
	bounds := img.Bounds()
	pos := 0
	emit := func(c int, value uint32) {
		// color.RGBA() returns 16 bits values packaged in uint32.
		v := float32(value) / float32(0xFFFF)
		fn(pos, (v-norm.Mean[c])/norm.Std[c])
		pos++
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if norm.Channels == 1 {
				// ITU-R 601-2 luma, the same used by image/color.GrayModel.
				emit(0, (19595*r+38470*g+7471*b+1<<15)>>16)
				continue
			}
			emit(0, r)
			emit(1, g)
			emit(2, b)
		}
	}
}

// ToFloat32 returns a conversion of images to Float32Image, normalized with norm.
func ToFloat32(norm Normalization) func(image.Image) (*Float32Image, error) {
	return func(img image.Image) (*Float32Image, error) {
		if err := norm.validate(); err != nil {
			return nil, err
		}
		size := img.Bounds().Size()
		t := &Float32Image{Height: size.Y, Width: size.X, Channels: norm.Channels}
		t.Data = make([]float32, size.X*size.Y*norm.Channels)
		forEachValue(img, norm, func(pos int, value float32) { t.Data[pos] = value })
		return t, nil
	}
}

// ToFloat16 returns a conversion of images to Float16Image, normalized with norm.
func ToFloat16(norm Normalization) func(image.Image) (*Float16Image, error) {
	return func(img image.Image) (*Float16Image, error) {
		if err := norm.validate(); err != nil {
			return nil, err
		}
		size := img.Bounds().Size()
		t := &Float16Image{Height: size.Y, Width: size.X, Channels: norm.Channels}
		t.Data = make([]float16.Float16, size.X*size.Y*norm.Channels)
		forEachValue(img, norm, func(pos int, value float32) { t.Data[pos] = float16.Fromfloat32(value) })
		return t, nil
	}
}
