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
	"errors"

	"github.com/ajroetker/go-cellmul/cellmul/contrib/matrix"
	"github.com/ajroetker/go-cellmul/cellmul/contrib/sched"
	"github.com/ajroetker/go-cellmul/cellmul/contrib/workerpool"
)

// Errors returned by Multiply. All of them are matched with errors.Is.
var (
	// ErrInvalidDimension: A.cols != B.rows, a dimension below 1 or a nil operand.
	ErrInvalidDimension = matrix.ErrInvalidDimension
	// ErrAllocation: storage for the result could not be obtained.
	ErrAllocation = matrix.ErrAllocation
	// ErrReleased: an operand was already released.
	ErrReleased = matrix.ErrReleased
	// ErrAttribute: a scheduling value is invalid or was rejected by the OS.
	ErrAttribute = sched.ErrAttribute
	// ErrSpawnFailure: a worker could not be started and the call was rolled back.
	ErrSpawnFailure = workerpool.ErrSpawnFailure

	// ErrIncomplete is returned when workers finished without writing every
	// cell, which only happens when a worker panicked.
	ErrIncomplete = errors.New("cellmul: result incomplete")
)
