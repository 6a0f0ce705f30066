// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatch(t *testing.T) {
	l := NewLatch()
	require.False(t, l.Test())
	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	l.Trigger()
	l.Trigger()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Latch.Wait didn't return after Trigger")
	}
	require.True(t, l.Test())
}
