// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIota(t *testing.T) {
	assert.Equal(t, []int{4, 5, 6}, Iota(4, 3))
	assert.Equal(t, []float32{1.5, 2.5}, Iota(float32(1.5), 2))
	assert.Empty(t, Iota(0, 0))
}

func TestMap(t *testing.T) {
	assert.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, strconv.Itoa))
}
