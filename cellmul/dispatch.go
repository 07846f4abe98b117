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
	"go.uber.org/zap"

	"github.com/ajroetker/go-cellmul/cellmul/contrib/matrix"
	"github.com/ajroetker/go-cellmul/cellmul/contrib/sched"
	"github.com/ajroetker/go-cellmul/cellmul/contrib/workerpool"
)

// call is the state of one Multiply between dispatch and join.
type call struct {
	group *workerpool.Group
	guard *aggregationGuard
	err   error
}

// dispatch starts the workers of one multiplication. Workers capture the
// buffers of a, b and c rather than the matrices, so releasing a matrix
// never races with a worker still finishing a cell.
func (e *Engine) dispatch(a, b, c *matrix.Matrix, cfg sched.Config, workers int) *call {
	aData, bData := a.Data(), b.Data()
	inner, cols := a.Cols(), c.Cols()
	cells := c.Rows() * cols
	guard := newAggregationGuard(c.Data())
	hook := e.dispatchHook

	task := func(_, i int) {
		item := itemAt(i, cols)
		if hook != nil {
			hook(item)
		}
		var sum int64
		aRow := aData[item.Row*inner : (item.Row+1)*inner]
		for k, av := range aRow {
			sum += av * bData[k*cols+item.Col]
		}
		guard.write(i, sum)
	}

	log := e.log.With(zap.Int("rows", c.Rows()), zap.Int("cols", cols), zap.Int("workers", workers))
	log.Debug("dispatching", zap.Stringer("policy", cfg.Policy), zap.Int("priority", cfg.Priority))

	e.closeMu.RLock()
	g, err := workerpool.Launch(cells, task, workerpool.Options{
		Workers:     workers,
		BatchSize:   e.batchSize,
		BeforeSpawn: e.spawnHook,
		Setup: func(w int) error {
			if err := cfg.Apply(w); err != nil {
				return err
			}
			e.metrics.spawned()
			return nil
		},
		ReleaseThread: cfg.Restorable(),
		OnCancel: func(w int) {
			e.metrics.cancelled()
			log.Debug("cancel requested", zap.Int("worker", w))
		},
		Tracker: &e.workers,
	})
	e.closeMu.RUnlock()
	if err != nil {
		// Late writes of orphaned workers are dropped from here on.
		guard.close()
		e.metrics.spawnFailed()
		log.Error("spawn failed, rolled back", zap.Error(err))
		return &call{err: err}
	}
	return &call{group: g, guard: guard}
}
