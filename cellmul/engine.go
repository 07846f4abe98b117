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

package cellmul

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajroetker/go-cellmul/cellmul/contrib/matrix"
	"github.com/ajroetker/go-cellmul/cellmul/contrib/sched"
)

// WorkItem identifies one cell of the result.
type WorkItem struct {
	Row, Col int
}

// itemAt maps linear index i of a result with cols columns to its cell.
func itemAt(i, cols int) WorkItem {
	return WorkItem{Row: i / cols, Col: i % cols}
}

// Engine runs multiplications. It is safe for concurrent use; each
// Multiply call has its own workers, guard and result.
type Engine struct {
	factory    *matrix.Factory
	log        *zap.Logger
	metrics    *Metrics
	maxWorkers int
	batchSize  int

	spawnHook    func(worker int) error
	dispatchHook func(WorkItem)

	// workers tracks every worker goroutine, including orphans of aborted
	// calls. closeMu keeps Close from waiting while a dispatch adds to it.
	closeMu sync.RWMutex
	workers sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithFactory sets the factory result matrices are allocated from.
func WithFactory(f *matrix.Factory) Option { return func(e *Engine) { e.factory = f } }

// WithLogger sets the logger for diagnostics. The default discards them.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMetrics records into m.
func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithMaxWorkers bounds the number of workers per call. If n <= 0, uses
// GOMAXPROCS.
func WithMaxWorkers(n int) Option { return func(e *Engine) { e.maxWorkers = n } }

// WithBatchSize sets how many cells a worker claims at a time.
func WithBatchSize(n int) Option { return func(e *Engine) { e.batchSize = n } }

// WithSpawnHook installs fn to run before each worker is started. A non-nil
// error is treated as a spawn failure of that worker.
func WithSpawnHook(fn func(worker int) error) Option {
	return func(e *Engine) { e.spawnHook = fn }
}

// WithDispatchHook installs fn to observe every cell right before it is
// computed. It is called concurrently from all workers.
func WithDispatchHook(fn func(WorkItem)) Option {
	return func(e *Engine) { e.dispatchHook = fn }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{batchSize: 1}
	for _, opt := range opts {
		opt(e)
	}
	if e.factory == nil {
		e.factory = matrix.NewFactory()
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.batchSize < 1 {
		e.batchSize = 1
	}
	return e
}

// Factory returns the factory results are allocated from.
func (e *Engine) Factory() *matrix.Factory { return e.factory }

// numWorkers returns how many workers a call with the given cell count uses.
func (e *Engine) numWorkers(cells int) int {
	n := e.maxWorkers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return min(n, cells)
}

// Multiply computes a x b with one unit of work per result cell, running
// workers configured by cfg. The result is allocated from the engine's
// factory and owned by the caller.
//
// On error no result is returned and nothing allocated by the call stays
// allocated. a and b must not be modified until Multiply returns; after a
// spawn failure, releasing them is safe even while orphaned workers finish.
func (e *Engine) Multiply(a, b *matrix.Matrix, cfg sched.Config) (_ *matrix.Matrix, err error) {
	start := time.Now()
	defer func() { e.metrics.observe(start, err) }()

	rows, cols, err := matrix.CheckProduct(a, b)
	if err != nil {
		e.log.Warn("rejected operands", zap.Error(err))
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		e.log.Warn("rejected scheduling config", zap.Error(err))
		return nil, err
	}

	res, err := e.factory.Allocate(rows, cols)
	if err != nil {
		e.log.Error("result allocation failed", zap.Int("rows", rows), zap.Int("cols", cols), zap.Error(err))
		return nil, err
	}
	defer func() {
		if err != nil {
			e.factory.Release(res)
		}
	}()

	cells := rows * cols
	workers := e.numWorkers(cells)
	if err := cfg.ValidateWorkers(workers); err != nil {
		e.log.Warn("scheduling config cannot cover workers", zap.Int("workers", workers), zap.Error(err))
		return nil, err
	}

	run := e.dispatch(a, b, res, cfg, workers)
	if run.err != nil {
		return nil, run.err
	}
	if err := e.join(run, cells); err != nil {
		return nil, err
	}
	return res, nil
}

// Multiply computes a x b on a shared default engine.
func Multiply(a, b *matrix.Matrix, cfg sched.Config) (*matrix.Matrix, error) {
	return defaultEngine().Multiply(a, b, cfg)
}

var defaultEngine = sync.OnceValue(func() *Engine { return New() })

// Close waits for the workers of every call, including those orphaned by
// a spawn failure. Dispatches that start while Close waits are held back
// until it returns. The engine stays usable afterwards.
func (e *Engine) Close() error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	e.workers.Wait()
	return nil
}
