// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadIfMissing(t *testing.T) {
	content := bytes.Repeat([]byte("metric learning "), 1000)
	hash := sha256.Sum256(content)
	checksum := hex.EncodeToString(hash[:])

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/data.bin" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	}))
	defer server.Close()

	ctx := context.Background()
	filePath := path.Join(t.TempDir(), "sub", "data.bin")
	require.NoError(t, DownloadIfMissing(ctx, server.URL+"/data.bin", filePath, checksum, true))
	got, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, int32(1), requests.Load())

	// Already there: no new request.
	require.NoError(t, DownloadIfMissing(ctx, server.URL+"/data.bin", filePath, checksum, false))
	assert.Equal(t, int32(1), requests.Load())

	// Wrong checksum removes the file.
	require.Error(t, DownloadIfMissing(ctx, server.URL+"/data.bin", filePath, "deadbeef", false))
	_, err = os.Stat(filePath)
	assert.True(t, os.IsNotExist(err))

	// HTTP errors are reported, and no file is left behind.
	missingPath := path.Join(t.TempDir(), "missing.bin")
	_, err = Download(ctx, server.URL+"/missing.bin", missingPath, false)
	require.Error(t, err)
	_, err = os.Stat(missingPath)
	assert.True(t, os.IsNotExist(err))
}

func TestCopyWithProgressBar(t *testing.T) {
	content := bytes.Repeat([]byte{7}, 3*1024*1024+5)
	var dst bytes.Buffer
	n, err := CopyWithProgressBar(&dst, bytes.NewReader(content), int64(len(content)), "test")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, dst.Bytes())

	dst.Reset()
	n, err = CopyWithProgressBar(&dst, bytes.NewReader(content[:10]), -1, "unknown size")
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}
