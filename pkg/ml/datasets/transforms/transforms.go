// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package transforms prepares decoded images to be fed to an embedding model: image-to-image steps
// (Resize, Grayscale, Augmenter) built on github.com/disintegration/imaging, and conversions to flat
// float32 or float16 buffers shaped [height, width, channels] (ToFloat32 and ToFloat16).
//
// Pipeline combines both into a function that can be used as a pairing.Transform:
//
//	transform := transforms.Pipeline(transforms.ToFloat32(transforms.ImageNetNormalization),
//		transforms.NewAugmenter(10, true, seed).Step, transforms.Resize(224, 224))
package transforms

import (
	"image"
	"image/color"
	"math/rand/v2"
	"sync"

	"github.com/disintegration/imaging"
)

// Step transforms an image into another. It must be safe for concurrent use.
type Step func(img image.Image) image.Image

// Chain returns a Step that applies the steps in order. Nil steps are skipped.
func Chain(steps ...Step) Step {
	return func(img image.Image) image.Image {
		for _, step := range steps {
			if step != nil {
				img = step(img)
			}
		}
		return img
	}
}

// Pipeline returns a function that applies the steps in order, and then converts the result with convert.
func Pipeline[T any](convert func(image.Image) (T, error), steps ...Step) func(image.Image) (T, error) {
	chain := Chain(steps...)
	return func(img image.Image) (T, error) {
		return convert(chain(img))
	}
}

// Resize returns a Step that resizes images to width x height, preserving the aspect ratio: the resized image
// is centered over a black background of the requested size.
func Resize(width, height int) Step {
	return func(img image.Image) image.Image {
		imgSize := img.Bounds().Size()
		wRatio := float64(width) / float64(imgSize.X)
		hRatio := float64(height) / float64(imgSize.Y)
		adjustedWidth, adjustedHeight := width, height
		if wRatio < hRatio {
			adjustedHeight = max(1, int(wRatio*float64(imgSize.Y)))
		} else if hRatio < wRatio {
			adjustedWidth = max(1, int(hRatio*float64(imgSize.X)))
		}
		img = imaging.Resize(img, adjustedWidth, adjustedHeight, imaging.Lanczos)
		if adjustedWidth != width || adjustedHeight != height {
			bgImg := imaging.New(width, height, color.NRGBA{A: 255})
			img = imaging.PasteCenter(bgImg, img)
		}
		return img
	}
}

// Grayscale returns a Step that desaturates images. The result is still an RGB image, with equal channels.
func Grayscale() Step {
	return func(img image.Image) image.Image {
		return imaging.Grayscale(img)
	}
}

// Augmenter randomly rotates and flips images, for training.
type Augmenter struct {
	angleStdDev  float64
	flipRandomly bool

	muRng sync.Mutex
	rng   *rand.Rand
}

// NewAugmenter creates an Augmenter that rotates images by a normally distributed angle (in degrees) with
// the given standard deviation (0 disables it) and, if flipRandomly, flips them horizontally half the time.
func NewAugmenter(angleStdDev float64, flipRandomly bool, seed uint64) *Augmenter {
	return &Augmenter{
		angleStdDev:  angleStdDev,
		flipRandomly: flipRandomly,
		rng:          rand.New(rand.NewPCG(seed, seed)),
	}
}

// Step augments the image. It is safe for concurrent use.
func (a *Augmenter) Step(img image.Image) image.Image {
	a.muRng.Lock()
	var angle float64
	if a.angleStdDev > 0 {
		angle = a.rng.NormFloat64() * a.angleStdDev
	}
	flip := a.flipRandomly && a.rng.IntN(2) == 1
	a.muRng.Unlock()

	if angle != 0 {
		img = imaging.Rotate(img, angle, color.NRGBA{A: 255})
	}
	if flip {
		img = imaging.FlipH(img)
	}
	return img
}
