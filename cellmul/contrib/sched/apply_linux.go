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

//go:build linux

package sched

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func pageSize() int { return unix.Getpagesize() }

func (p Policy) osPolicy() uint32 {
	switch p {
	case RoundRobin:
		return unix.SCHED_RR
	case FIFO:
		return unix.SCHED_FIFO
	default:
		return unix.SCHED_NORMAL
	}
}

func policyFromOS(p uint32) (Policy, error) {
	switch p {
	case unix.SCHED_NORMAL:
		return TimeShare, nil
	case unix.SCHED_RR:
		return RoundRobin, nil
	case unix.SCHED_FIFO:
		return FIFO, nil
	default:
		return TimeShare, fmt.Errorf("os policy %d: %w", p, ErrAttribute)
	}
}

// Apply configures the calling OS thread for the worker with the given
// spawn index. The caller must have locked the goroutine to its thread.
func (c Config) Apply(worker int) error {
	if len(c.CPUs) > 0 {
		var set unix.CPUSet
		set.Zero()
		for _, cpu := range c.CPUs {
			set.Set(cpu)
		}
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			return fmt.Errorf("%w: sched_setaffinity(tid %d, %v): %w", ErrAttribute, unix.Gettid(), c.CPUs, err)
		}
	}
	if c.Inheritance == Inherit {
		return nil
	}
	prio := c.PriorityFor(worker)
	attr := unix.SchedAttr{
		Policy:   c.Policy.osPolicy(),
		Priority: uint32(prio),
	}
	if c.Policy == TimeShare {
		// Keep the nice value; lowering it needs privilege.
		if cur, err := unix.SchedGetAttr(0, 0); err == nil {
			attr.Nice = cur.Nice
		}
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return fmt.Errorf("%w: sched_setattr(tid %d, %s, %d): %w", ErrAttribute, unix.Gettid(), c.Policy, prio, err)
	}
	return nil
}

// Current reports the policy and priority of the calling OS thread.
func Current() (Policy, int, error) {
	attr, err := unix.SchedGetAttr(0, 0)
	if err != nil {
		return TimeShare, 0, fmt.Errorf("%w: sched_getattr: %w", ErrAttribute, err)
	}
	p, err := policyFromOS(attr.Policy)
	return p, int(attr.Priority), err
}
