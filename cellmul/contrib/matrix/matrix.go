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

// Package matrix provides the dense integer matrices consumed and produced
// by the cellmul engine, a Factory that owns allocation accounting and a
// seeded random source, and a Printer for human-readable grids.
//
// Matrices are stored in one contiguous row-major buffer: element (i, j)
// lives at data[i*cols+j].
//
// Example usage:
//
//	f := matrix.NewFactory(matrix.WithSeed(42))
//	a, err := f.CreateRandom(3, 4, 0, 10)
//	if err != nil {
//	    return err
//	}
//	defer f.Release(a)
package matrix

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDimension is returned when a dimension is < 1, when operand
	// shapes are incompatible, or when literal rows are ragged.
	ErrInvalidDimension = errors.New("matrix: invalid dimension")

	// ErrAllocation is returned when backing storage cannot be obtained.
	ErrAllocation = errors.New("matrix: allocation failure")

	// ErrReleased is returned when a released matrix is used.
	ErrReleased = errors.New("matrix: matrix was released")

	// ErrInvalidRange is returned when a random range has min > max.
	ErrInvalidRange = errors.New("matrix: invalid value range")
)

// Matrix is a dense rows x cols grid of signed integers.
type Matrix struct {
	rows, cols int
	data       []int64
	owner      *Factory
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns, which is also the row stride.
func (m *Matrix) Cols() int { return m.cols }

// Released reports whether the backing storage has been handed back.
func (m *Matrix) Released() bool { return m == nil || m.data == nil }

// At returns the element at (row, col). It panics on out-of-range indices,
// like slice indexing.
func (m *Matrix) At(row, col int) int64 {
	m.checkIndex(row, col)
	return m.data[row*m.cols+col]
}

// Set assigns the element at (row, col).
func (m *Matrix) Set(row, col int, v int64) {
	m.checkIndex(row, col)
	m.data[row*m.cols+col] = v
}

func (m *Matrix) checkIndex(row, col int) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic(fmt.Sprintf("matrix: index (%d,%d) out of range for %dx%d", row, col, m.rows, m.cols))
	}
}

// Data returns the row-major backing buffer. The slice aliases the matrix.
func (m *Matrix) Data() []int64 { return m.data }

// Row returns row i as a slice aliasing the backing buffer.
func (m *Matrix) Row(i int) []int64 {
	m.checkIndex(i, 0)
	return m.data[i*m.cols : (i+1)*m.cols]
}

// ToRows copies the matrix into a freshly allocated [][]int64.
func (m *Matrix) ToRows() [][]int64 {
	out := make([][]int64, m.rows)
	for i := range m.rows {
		out[i] = append([]int64(nil), m.Row(i)...)
	}
	return out
}

// Equal reports whether m and other have the same shape and elements.
func (m *Matrix) Equal(other *Matrix) bool {
	if m.Released() || other.Released() {
		return false
	}
	if m.rows != other.rows || m.cols != other.cols {
		return false
	}
	for i, v := range m.data {
		if other.data[i] != v {
			return false
		}
	}
	return true
}

// Validate returns ErrReleased for nil or released matrices.
func (m *Matrix) Validate() error {
	if m == nil {
		return fmt.Errorf("nil matrix: %w", ErrInvalidDimension)
	}
	if m.data == nil {
		return ErrReleased
	}
	return nil
}

// String implements fmt.Stringer.
func (m *Matrix) String() string {
	if m.Released() {
		return "[released]"
	}
	var sb strings.Builder
	for i := range m.rows {
		sb.WriteString("[")
		for j, v := range m.Row(i) {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%d", v)
		}
		sb.WriteString("]\n")
	}
	return sb.String()
}

// CheckProduct validates that a (r1 x c1) and b (c1 x c2) can be multiplied
// and returns the result shape.
func CheckProduct(a, b *Matrix) (rows, cols int, err error) {
	if err := a.Validate(); err != nil {
		return 0, 0, fmt.Errorf("operand A: %w", err)
	}
	if err := b.Validate(); err != nil {
		return 0, 0, fmt.Errorf("operand B: %w", err)
	}
	if a.cols != b.rows {
		return 0, 0, fmt.Errorf("A(%dx%d) x B(%dx%d): %w", a.rows, a.cols, b.rows, b.cols, ErrInvalidDimension)
	}
	return a.rows, b.cols, nil
}

// Mul computes a x b sequentially. It is the reference the concurrent
// engine is checked against.
func Mul(a, b *Matrix) (*Matrix, error) {
	rows, cols, err := CheckProduct(a, b)
	if err != nil {
		return nil, err
	}
	c := &Matrix{rows: rows, cols: cols, data: make([]int64, rows*cols)}
	for i := range rows {
		for j := range cols {
			c.data[i*cols+j] = Dot(a, b, i, j)
		}
	}
	return c, nil
}

// Dot returns sum_k a[row][k] * b[k][col]. It reads only a and b and takes
// no locks; callers guarantee neither is mutated concurrently.
func Dot(a, b *Matrix, row, col int) int64 {
	var sum int64
	aRow := a.data[row*a.cols : (row+1)*a.cols]
	for k, av := range aRow {
		sum += av * b.data[k*b.cols+col]
	}
	return sum
}
