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

package matrix

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// Factory allocates matrices and keeps count of the cells it has handed out
// and not yet received back. It owns its random source, so two factories
// built with the same seed produce the same random matrices.
//
// A Factory is safe for concurrent use.
type Factory struct {
	mu  sync.Mutex
	rng *rand.Rand

	seed        uint64
	maxCells    int
	outstanding atomic.Int64
}

// Option configures a Factory.
type Option func(*Factory)

// WithSeed fixes the seed of the factory's random source. A zero seed is
// replaced by a time-based one.
func WithSeed(seed uint64) Option {
	return func(f *Factory) { f.seed = seed }
}

// WithMaxCells caps the number of cells a single allocation may request.
// Zero means no cap beyond what the runtime can provide.
func WithMaxCells(n int) Option {
	return func(f *Factory) { f.maxCells = n }
}

// NewFactory creates a Factory.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{}
	for _, opt := range opts {
		opt(f)
	}
	if f.seed == 0 {
		f.seed = uint64(time.Now().UnixNano())
	}
	f.rng = rand.New(rand.NewPCG(f.seed, f.seed^0x9e3779b97f4a7c15))
	return f
}

// Seed returns the seed actually in use.
func (f *Factory) Seed() uint64 { return f.seed }

// Outstanding returns the number of cells allocated and not yet released.
func (f *Factory) Outstanding() int { return int(f.outstanding.Load()) }

// Allocate reserves a zeroed rows x cols matrix.
//
// Dimensions are validated before anything is allocated. Because storage is
// a single buffer, allocation either fully succeeds or leaves nothing behind.
func (f *Factory) Allocate(rows, cols int) (*Matrix, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("allocate %dx%d: %w", rows, cols, ErrInvalidDimension)
	}
	if rows > math.MaxInt/cols {
		return nil, fmt.Errorf("allocate %dx%d: cell count overflows: %w", rows, cols, ErrAllocation)
	}
	cells := rows * cols
	if f.maxCells > 0 && cells > f.maxCells {
		return nil, fmt.Errorf("allocate %dx%d: %d cells exceeds limit %d: %w", rows, cols, cells, f.maxCells, ErrAllocation)
	}
	data, err := makeBuffer(cells)
	if err != nil {
		return nil, fmt.Errorf("allocate %dx%d: %w", rows, cols, err)
	}
	f.outstanding.Add(int64(cells))
	return &Matrix{rows: rows, cols: cols, data: data, owner: f}, nil
}

// makeBuffer converts the runtime's makeslice panic into ErrAllocation.
func makeBuffer(cells int) (data []int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("%v: %w", r, ErrAllocation)
		}
	}()
	return make([]int64, cells), nil
}

// FromRows allocates a matrix holding a copy of rows.
func (f *Factory) FromRows(rows [][]int64) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows: %w", ErrInvalidDimension)
	}
	m, err := f.Allocate(len(rows), len(rows[0]))
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		if len(r) != m.cols {
			f.Release(m)
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(r), m.cols, ErrInvalidDimension)
		}
		copy(m.data[i*m.cols:], r)
	}
	return m, nil
}

// PopulateRandom fills every cell of m with a value drawn uniformly from
// [min, max].
func (f *Factory) PopulateRandom(m *Matrix, lo, hi int64) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if lo > hi {
		return fmt.Errorf("[%d, %d]: %w", lo, hi, ErrInvalidRange)
	}
	span := uint64(hi-lo) + 1

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range m.data {
		if span == 0 {
			// [MinInt64, MaxInt64]: every 64-bit pattern is valid.
			m.data[i] = int64(f.rng.Uint64())
			continue
		}
		m.data[i] = lo + int64(f.rng.Uint64N(span))
	}
	return nil
}

// CreateRandom allocates a rows x cols matrix and populates it from
// [min, max]. Nothing stays allocated when it fails.
func (f *Factory) CreateRandom(rows, cols int, lo, hi int64) (*Matrix, error) {
	m, err := f.Allocate(rows, cols)
	if err != nil {
		return nil, err
	}
	if err := f.PopulateRandom(m, lo, hi); err != nil {
		f.Release(m)
		return nil, err
	}
	return m, nil
}

// RandomDims draws a dimension uniformly from [min, max].
func (f *Factory) RandomDims(lo, hi int) (int, error) {
	if lo < 1 || lo > hi {
		return 0, fmt.Errorf("dimension range [%d, %d]: %w", lo, hi, ErrInvalidRange)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo + f.rng.IntN(hi-lo+1), nil
}

// Release hands the storage of m back to the factory that allocated it. It
// is safe to call on nil matrices and on matrices that are already released.
//
// Anything still holding a reference to the old buffer keeps it alive; the
// buffer is never reused, so late writers cannot corrupt other matrices.
func (f *Factory) Release(m *Matrix) {
	if m == nil || m.data == nil {
		return
	}
	if m.owner != nil {
		m.owner.outstanding.Add(-int64(len(m.data)))
	}
	m.data = nil
	m.owner = nil
}
