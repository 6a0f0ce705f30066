// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"image"

	"github.com/gomlx/metriclearn/pkg/ml/datasets/labels"
	"github.com/pkg/errors"
)

// Source is a labeled collection of images: the underlying dataset of the Siamese and Triplet wrappers.
//
// Image may be called concurrently.
type Source interface {
	labels.Sequence

	// Image loads (and decodes, if needed) the image of example i.
	Image(i int) (image.Image, error)
}

// AuxLabeler is optionally implemented by a Source with an auxiliary string label per example
// (e.g. the car model when training on the car make). Triplet examples carry it.
type AuxLabeler interface {
	// AuxLabel returns the auxiliary label of example i, and whether the source has auxiliary labels at all.
	AuxLabel(i int) (label string, ok bool)
}

// Transform converts a decoded image to the representation fed to the model, typically a tensor-like buffer.
// See package transforms for implementations.
//
// It must be safe for concurrent use.
type Transform[T any] func(img image.Image) (T, error)

// apply transform to img. A nil transform returns the image itself, if T accepts it.
func (transform Transform[T]) apply(img image.Image) (T, error) {
	if transform == nil {
		value, ok := any(img).(T)
		if !ok {
			var zero T
			return zero, errors.Errorf("no Transform given, and the image of type %T can't be returned as %T", img, zero)
		}
		return value, nil
	}
	return transform(img)
}

// InMemory is a Source with all images already decoded in memory.
type InMemory struct {
	images []image.Image
	labels labels.Sequence
	aux    []string
}

var _ Source = (*InMemory)(nil)

// NewInMemory creates an InMemory source. There must be one label per image.
func NewInMemory(images []image.Image, seq labels.Sequence) (*InMemory, error) {
	if len(images) != seq.Len() {
		return nil, errors.Errorf("NewInMemory got %d images but %d labels", len(images), seq.Len())
	}
	return &InMemory{images: images, labels: seq}, nil
}

// FromGrayPixels creates an InMemory source from the raw 8-bit gray pixels of fixed size images, stored
// contiguously, row-major: image i spans pixels[i*width*height:(i+1)*width*height].
//
// The pixels are not copied: the images share the underlying storage.
func FromGrayPixels(pixels []uint8, width, height int, seq labels.Sequence) (*InMemory, error) {
	imageSize := width * height
	if imageSize <= 0 {
		return nil, errors.Errorf("FromGrayPixels got invalid image size %dx%d", width, height)
	}
	n := seq.Len()
	if len(pixels) != n*imageSize {
		return nil, errors.Errorf("FromGrayPixels got %d pixels for %d images of %dx%d (expected %d pixels)",
			len(pixels), n, width, height, n*imageSize)
	}
	images := make([]image.Image, n)
	for i := range n {
		images[i] = &image.Gray{
			Pix:    pixels[i*imageSize : (i+1)*imageSize : (i+1)*imageSize],
			Stride: width,
			Rect:   image.Rect(0, 0, width, height),
		}
	}
	return NewInMemory(images, seq)
}

// WithAux sets auxiliary labels, one per example.
// It returns itself, to allow cascading configuration calls.
func (s *InMemory) WithAux(aux []string) (*InMemory, error) {
	if len(aux) != len(s.images) {
		return nil, errors.Errorf("InMemory.WithAux got %d auxiliary labels for %d images", len(aux), len(s.images))
	}
	s.aux = aux
	return s, nil
}

// Len implements labels.Sequence.
func (s *InMemory) Len() int { return len(s.images) }

// Label implements labels.Sequence.
func (s *InMemory) Label(i int) int { return s.labels.Label(i) }

// Image implements Source.
func (s *InMemory) Image(i int) (image.Image, error) {
	if i < 0 || i >= len(s.images) {
		return nil, errors.Errorf("image index %d out of range [0, %d)", i, len(s.images))
	}
	return s.images[i], nil
}

// AuxLabel implements AuxLabeler.
func (s *InMemory) AuxLabel(i int) (string, bool) {
	if s.aux == nil {
		return "", false
	}
	return s.aux[i], true
}
