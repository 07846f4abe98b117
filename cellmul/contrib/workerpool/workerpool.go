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

// Package workerpool runs n indivisible work items on a bounded group of
// workers, each locked to its own OS thread.
//
// Workers are spawned one at a time, in index order, and a worker counts as
// spawned only once its thread setup succeeded. If worker k cannot be
// spawned, workers k-1 down to 0 are asked to cancel and Launch returns at
// once without waiting for them. Cancellation is checked before every item,
// so an item that has started always runs to completion.
//
// Items are handed out through an atomic counter in batches, which balances
// load when item cost varies.
//
// Usage:
//
//	g, err := workerpool.Launch(n, func(worker, i int) {
//	    process(i)
//	}, workerpool.Options{Workers: 8, Setup: applySched})
//	if err != nil {
//	    return err
//	}
//	if err := g.Join(); err != nil {
//	    return err
//	}
package workerpool

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sys/cpu"
)

// ErrSpawnFailure is matched by every error returned from Launch.
var ErrSpawnFailure = errors.New("workerpool: worker failed to start")

// SpawnError reports which worker could not be started and why.
type SpawnError struct {
	Worker int
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("workerpool: spawn worker %d: %v", e.Worker, e.Err)
}

// Unwrap exposes both ErrSpawnFailure and the underlying cause to errors.Is.
func (e *SpawnError) Unwrap() []error { return []error{ErrSpawnFailure, e.Err} }

// PanicError is returned by Join when a task panicked.
type PanicError struct {
	Worker int
	Index  int
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workerpool: worker %d panicked on item %d: %v", e.Worker, e.Index, e.Value)
}

// Task processes item index on the given worker.
type Task func(worker, index int)

// Options configures Launch.
type Options struct {
	// Workers bounds the number of workers. If <= 0, uses GOMAXPROCS.
	// Never more workers than items are started.
	Workers int

	// BatchSize is the number of items claimed per atomic grab. If <= 0, 1.
	BatchSize int

	// BeforeSpawn runs on the launching goroutine before worker k starts.
	// An error aborts the launch.
	BeforeSpawn func(worker int) error

	// Setup runs on the worker's locked OS thread before it claims any
	// item. An error aborts the launch.
	Setup func(worker int) error

	// ReleaseThread unlocks the OS thread when the worker exits. Leave it
	// false when Setup changed thread state: the runtime then discards the
	// thread instead of reusing it.
	ReleaseThread bool

	// OnCancel is called for every worker asked to cancel during rollback,
	// in the order the requests are issued.
	OnCancel func(worker int)

	// Tracker, if set, is incremented for every started worker goroutine
	// and decremented when it exits, including workers orphaned by a
	// failed launch.
	Tracker *sync.WaitGroup
}

// worker is the per-goroutine state. The cancel flag is padded onto its own
// cache line because the launcher writes it while the worker polls it.
type worker struct {
	cancel atomic.Bool
	_      cpu.CacheLinePad

	done      chan struct{}
	err       error
	processed int
}

// Group is a launched set of workers.
type Group struct {
	n       int
	batch   int
	task    Task
	opts    Options
	next    atomic.Int64
	aborted atomic.Bool
	workers []*worker
}

// Launch spawns min(opts.Workers, n) workers in index order and returns
// once all of them are running. On failure the already running workers are
// cancelled in reverse spawn order and a *SpawnError is returned; the
// caller must not wait for them through the Group.
func Launch(n int, task Task, opts Options) (*Group, error) {
	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	numWorkers = min(numWorkers, max(n, 0))

	batch := opts.BatchSize
	if batch <= 0 {
		batch = 1
	}

	g := &Group{
		n:       n,
		batch:   batch,
		task:    task,
		opts:    opts,
		workers: make([]*worker, 0, numWorkers),
	}

	for k := range numWorkers {
		if err := g.spawn(k); err != nil {
			g.rollback()
			return nil, &SpawnError{Worker: k, Err: err}
		}
	}
	return g, nil
}

// spawn starts worker k and waits until its thread is set up.
func (g *Group) spawn(k int) error {
	if g.opts.BeforeSpawn != nil {
		if err := g.opts.BeforeSpawn(k); err != nil {
			return err
		}
	}

	w := &worker{done: make(chan struct{})}
	ready := make(chan error, 1)
	if g.opts.Tracker != nil {
		g.opts.Tracker.Add(1)
	}
	go g.run(k, w, ready)

	if err := <-ready; err != nil {
		return err
	}
	g.workers = append(g.workers, w)
	return nil
}

// run is the body of worker k.
func (g *Group) run(k int, w *worker, ready chan<- error) {
	defer func() {
		close(w.done)
		if g.opts.Tracker != nil {
			g.opts.Tracker.Done()
		}
	}()

	runtime.LockOSThread()
	if g.opts.Setup != nil {
		if err := g.opts.Setup(k); err != nil {
			// The thread may be half configured: exit locked so it is
			// discarded.
			ready <- err
			return
		}
	}
	if g.opts.ReleaseThread {
		defer runtime.UnlockOSThread()
	}
	ready <- nil

	current := -1
	defer func() {
		if r := recover(); r != nil {
			w.err = &PanicError{Worker: k, Index: current, Value: r}
			g.Abort()
		}
	}()

	for {
		if g.stopped(w) {
			return
		}
		start := int(g.next.Add(int64(g.batch))) - g.batch
		if start >= g.n {
			return
		}
		end := min(start+g.batch, g.n)
		for i := start; i < end; i++ {
			if g.stopped(w) {
				return
			}
			current = i
			g.task(k, i)
			w.processed++
		}
	}
}

func (g *Group) stopped(w *worker) bool {
	return w.cancel.Load() || g.aborted.Load()
}

// rollback asks every spawned worker to cancel, newest first.
func (g *Group) rollback() {
	for j := len(g.workers) - 1; j >= 0; j-- {
		g.workers[j].cancel.Store(true)
		if g.opts.OnCancel != nil {
			g.opts.OnCancel(j)
		}
	}
}

// Abort asks every worker to stop before its next item.
func (g *Group) Abort() { g.aborted.Store(true) }

// NumWorkers returns the number of workers that were started.
func (g *Group) NumWorkers() int { return len(g.workers) }

// Join waits for every worker in spawn order and returns the combined
// panics of all workers, if any.
func (g *Group) Join() error {
	var err error
	for _, w := range g.workers {
		<-w.done
		err = multierr.Append(err, w.err)
	}
	return err
}

// Processed returns how many items each worker completed. Only meaningful
// after Join.
func (g *Group) Processed() []int {
	out := make([]int, len(g.workers))
	for i, w := range g.workers {
		out[i] = w.processed
	}
	return out
}
