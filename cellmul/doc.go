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

// Package cellmul multiplies dense int64 matrices by treating every cell of
// the result as an independent unit of work.
//
// For C = A x B each cell C[row][col] is one dot product, computed without
// locks from the read-only inputs and written back under a single mutex.
// Cells are handed to a bounded group of workers, each running on its own
// OS thread configured by a [sched.Config]: policy, priority (optionally
// ascending by spawn index), inheritance and CPU affinity.
//
// # Failure model
//
// Multiply is fail-fast. Bad shapes are rejected before anything is
// allocated. If worker k cannot be started (its thread rejects the
// scheduling configuration, or a spawn hook refuses it), workers k-1 down
// to 0 are asked to cancel and Multiply returns at once with an error
// matching [ErrSpawnFailure] and the cause. Cancellation is checked before
// each cell, so a cell already being computed still finishes; such workers
// keep their own references and never touch memory the caller reuses.
// [Engine.Close] waits for them.
//
// Every path releases the result matrix it allocated when no result is
// returned.
//
// # Basic Usage
//
//	f := matrix.NewFactory(matrix.WithSeed(42))
//	a, _ := f.CreateRandom(3, 4, 0, 10)
//	b, _ := f.CreateRandom(4, 2, 0, 10)
//
//	e := cellmul.New(cellmul.WithFactory(f))
//	defer e.Close()
//
//	c, err := e.Multiply(a, b, sched.Default())
//	if err != nil {
//	    return err
//	}
//	defer f.Release(c)
//
// # Environment Variables
//
// The config subpackage loads every knob from CELLMUL_* variables and an
// optional .env file.
package cellmul
