// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"os/user"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	filePath := path.Join(dir, "labels.csv")
	exists, err := FileExists(filePath)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, os.WriteFile(filePath, []byte("path,label\n"), 0644))
	exists, err = FileExists(filePath)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReplaceTildeInDir(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	got, err := ReplaceTildeInDir("~/data/mnist")
	require.NoError(t, err)
	assert.Equal(t, path.Join(usr.HomeDir, "data/mnist"), got)

	got, err = ReplaceTildeInDir("/tmp/mnist")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/mnist", got)

	got, err = ReplaceTildeInDir("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestResolvePath(t *testing.T) {
	got, err := ResolvePath("/data/cars", "images/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "/data/cars/images/1.jpg", got)

	got, err = ResolvePath("/data/cars", "/abs/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "/abs/1.jpg", got)

	got, err = ResolvePath("", "images/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "images/1.jpg", got)
}
