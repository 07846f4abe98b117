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

import "sync"

// aggregationGuard serializes the writes of one multiplication into its
// result buffer. The critical section is exactly one assignment.
type aggregationGuard struct {
	mu     sync.Mutex
	dst    []int64
	writes int
	closed bool
}

func newAggregationGuard(dst []int64) *aggregationGuard {
	return &aggregationGuard{dst: dst}
}

// write stores v at linear index i. Writes after close are dropped.
func (g *aggregationGuard) write(i int, v int64) {
	g.mu.Lock()
	if !g.closed {
		g.dst[i] = v
		g.writes++
	}
	g.mu.Unlock()
}

// close stops accepting writes and returns how many were applied.
func (g *aggregationGuard) close() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.dst = nil
	return g.writes
}
