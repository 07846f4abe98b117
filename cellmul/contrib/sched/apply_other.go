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

//go:build !linux

package sched

import (
	"errors"
	"fmt"
	"os"
)

func pageSize() int { return os.Getpagesize() }

// Apply configures the calling OS thread for the worker with the given
// spawn index. Outside Linux only inherited, unpinned scheduling and
// explicit time-sharing at priority 0 are supported.
func (c Config) Apply(worker int) error {
	if len(c.CPUs) > 0 {
		return fmt.Errorf("%w: cpu affinity: %w", ErrAttribute, errors.ErrUnsupported)
	}
	if c.Inheritance == Inherit {
		return nil
	}
	if c.Policy == TimeShare && c.PriorityFor(worker) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s priority %d: %w", ErrAttribute, c.Policy, c.PriorityFor(worker), errors.ErrUnsupported)
}

// Current reports the policy and priority of the calling OS thread.
func Current() (Policy, int, error) {
	return TimeShare, 0, fmt.Errorf("%w: %w", ErrAttribute, errors.ErrUnsupported)
}
