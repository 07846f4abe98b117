// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

package sched

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// onThrowawayThread runs fn on a locked OS thread that is discarded
// afterwards, so scheduling changes never leak into other tests.
func onThrowawayThread(fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		fn()
	}()
	<-done
}

func TestApplyExplicitTimeShare(t *testing.T) {
	cfg, err := Build(TimeShare, 0, Explicit)
	require.NoError(t, err)

	var applyErr, curErr error
	var policy Policy
	onThrowawayThread(func() {
		applyErr = cfg.Apply(0)
		policy, _, curErr = Current()
	})
	require.NoError(t, applyErr)
	require.NoError(t, curErr)
	assert.Equal(t, TimeShare, policy)
}

func TestApplyRealTime(t *testing.T) {
	cfg, err := Build(FIFO, 1, Explicit)
	require.NoError(t, err)

	var applyErr error
	var policy Policy
	var prio int
	onThrowawayThread(func() {
		applyErr = cfg.Apply(0)
		if applyErr == nil {
			policy, prio, _ = Current()
		}
	})
	if applyErr != nil {
		// Unprivileged: the kernel refuses and we must say so.
		require.ErrorIs(t, applyErr, ErrAttribute)
		var errno unix.Errno
		assert.True(t, errors.As(applyErr, &errno), "%v", applyErr)
		return
	}
	assert.Equal(t, FIFO, policy)
	assert.Equal(t, 1, prio)
}

func TestApplyAffinity(t *testing.T) {
	var before unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &before))
	cpu := -1
	for i := range 1024 {
		if before.IsSet(i) {
			cpu = i
			break
		}
	}
	if cpu < 0 {
		t.Skip("no CPU in current affinity set")
	}

	cfg, err := Build(TimeShare, 0, Inherit, WithCPUs(cpu))
	require.NoError(t, err)

	var applyErr error
	var after unix.CPUSet
	onThrowawayThread(func() {
		applyErr = cfg.Apply(0)
		_ = unix.SchedGetaffinity(0, &after)
	})
	require.NoError(t, applyErr)
	assert.Equal(t, 1, after.Count())
	assert.True(t, after.IsSet(cpu))
}
