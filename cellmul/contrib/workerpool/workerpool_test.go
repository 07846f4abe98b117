// Copyright 2025 The go-highway Authors. SPDX-License-Identifier: Apache-2.0

package workerpool

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestLaunchCoversEveryItemOnce(t *testing.T) {
	for _, batch := range []int{0, 1, 3, 7, 100} {
		n := 100
		hits := make([]atomic.Int32, n)

		g, err := Launch(n, func(_, i int) {
			hits[i].Add(1)
		}, Options{Workers: 4, BatchSize: batch, ReleaseThread: true})
		if err != nil {
			t.Fatalf("batch %d: Launch: %v", batch, err)
		}
		if err := g.Join(); err != nil {
			t.Fatalf("batch %d: Join: %v", batch, err)
		}

		for i := range hits {
			if got := hits[i].Load(); got != 1 {
				t.Errorf("batch %d: hits[%d] = %d, want 1", batch, i, got)
			}
		}
		total := 0
		for _, p := range g.Processed() {
			total += p
		}
		if total != n {
			t.Errorf("batch %d: processed %d items, want %d", batch, total, n)
		}
	}
}

func TestLaunchWorkerCount(t *testing.T) {
	g, err := Launch(3, func(_, _ int) {}, Options{Workers: 16, ReleaseThread: true})
	if err != nil {
		t.Fatal(err)
	}
	defer g.Join()
	if g.NumWorkers() != 3 {
		t.Errorf("NumWorkers() = %d, want 3", g.NumWorkers())
	}

	g2, err := Launch(1000, func(_, _ int) {}, Options{ReleaseThread: true})
	if err != nil {
		t.Fatal(err)
	}
	defer g2.Join()
	if want := min(runtime.GOMAXPROCS(0), 1000); g2.NumWorkers() != want {
		t.Errorf("NumWorkers() = %d, want %d", g2.NumWorkers(), want)
	}
}

func TestLaunchEmpty(t *testing.T) {
	g, err := Launch(0, func(_, _ int) { t.Error("task called") }, Options{Workers: 4})
	if err != nil {
		t.Fatal(err)
	}
	if g.NumWorkers() != 0 {
		t.Errorf("NumWorkers() = %d, want 0", g.NumWorkers())
	}
	if err := g.Join(); err != nil {
		t.Errorf("Join() = %v, want nil", err)
	}
}

func TestSpawnOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int
	g, err := Launch(8, func(_, _ int) {}, Options{
		Workers: 8,
		Setup: func(w int) error {
			mu.Lock()
			order = append(order, w)
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Join(); err != nil {
		t.Fatal(err)
	}
	for i, w := range order {
		if w != i {
			t.Fatalf("setup order = %v, want ascending", order)
		}
	}
}

func TestSpawnFailureRollback(t *testing.T) {
	errBoom := errors.New("boom")
	const failAt = 3

	var tracker sync.WaitGroup
	release := make(chan struct{})
	var cancelled []int
	started := make(chan struct{}, failAt)

	_, err := Launch(100, func(w, _ int) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	}, Options{
		Workers: 8,
		Setup: func(w int) error {
			if w == failAt {
				return errBoom
			}
			return nil
		},
		OnCancel: func(w int) { cancelled = append(cancelled, w) },
		Tracker:  &tracker,
	})

	var se *SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("Launch error = %v, want *SpawnError", err)
	}
	if se.Worker != failAt {
		t.Errorf("SpawnError.Worker = %d, want %d", se.Worker, failAt)
	}
	if !errors.Is(err, ErrSpawnFailure) || !errors.Is(err, errBoom) {
		t.Errorf("Launch error = %v, want ErrSpawnFailure and cause", err)
	}

	want := []int{2, 1, 0}
	if len(cancelled) != len(want) {
		t.Fatalf("cancelled = %v, want %v", cancelled, want)
	}
	for i := range want {
		if cancelled[i] != want[i] {
			t.Fatalf("cancelled = %v, want %v", cancelled, want)
		}
	}

	// Workers blocked on their current item finish it and then observe the
	// cancel flag.
	close(release)
	done := make(chan struct{})
	go func() {
		tracker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("orphaned workers did not exit")
	}
}

func TestBeforeSpawnFailure(t *testing.T) {
	errNoRoom := errors.New("no room")
	var ran atomic.Int32
	var tracker sync.WaitGroup

	_, err := Launch(10, func(_, _ int) { ran.Add(1) }, Options{
		Workers: 4,
		BeforeSpawn: func(w int) error {
			if w == 0 {
				return errNoRoom
			}
			return nil
		},
		Tracker: &tracker,
	})
	if !errors.Is(err, ErrSpawnFailure) || !errors.Is(err, errNoRoom) {
		t.Fatalf("Launch error = %v, want ErrSpawnFailure wrapping cause", err)
	}
	tracker.Wait()
	if ran.Load() != 0 {
		t.Errorf("ran %d items, want 0", ran.Load())
	}
}

func TestJoinCollectsPanics(t *testing.T) {
	g, err := Launch(50, func(_, i int) {
		if i%10 == 0 {
			panic("bad item")
		}
	}, Options{Workers: 2, ReleaseThread: true})
	if err != nil {
		t.Fatal(err)
	}
	err = g.Join()
	if err == nil {
		t.Fatal("Join() = nil, want panic error")
	}
	for _, e := range multierr.Errors(err) {
		var pe *PanicError
		if !errors.As(e, &pe) {
			t.Errorf("error %v is not a *PanicError", e)
			continue
		}
		if pe.Index%10 != 0 {
			t.Errorf("PanicError.Index = %d, want a multiple of 10", pe.Index)
		}
	}
}

func BenchmarkLaunch(b *testing.B) {
	n := 1024
	out := make([]int64, n)
	for b.Loop() {
		g, err := Launch(n, func(_, i int) { out[i] = int64(i) * 3 }, Options{BatchSize: 16, ReleaseThread: true})
		if err != nil {
			b.Fatal(err)
		}
		if err := g.Join(); err != nil {
			b.Fatal(err)
		}
	}
}
