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

// Package sched builds the OS scheduling configuration applied to every
// worker thread of a multiplication: policy, priority, inheritance, stack
// and guard sizes and an optional CPU affinity set.
//
// A Config is validated once by Build and is then read-only. Workers apply
// it to their own locked OS thread with Apply:
//
//	cfg, err := sched.Build(sched.RoundRobin, 10, sched.Explicit,
//	    sched.WithAscendingPriority())
//	if err != nil {
//	    return err
//	}
//	runtime.LockOSThread()
//	if err := cfg.Apply(worker); err != nil {
//	    return err
//	}
//
// Real-time policies (RoundRobin, FIFO) usually need CAP_SYS_NICE; the OS
// refusal is reported by Apply as ErrAttribute.
package sched

import (
	"errors"
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/samber/lo"
	"github.com/tklauser/numcpus"
)

// ErrAttribute is returned when a scheduling value is invalid or rejected
// by the operating system.
var ErrAttribute = errors.New("sched: scheduling attribute rejected")

// Policy is an OS scheduling policy.
type Policy int

const (
	// TimeShare is the default time-shared policy (SCHED_OTHER).
	TimeShare Policy = iota
	// RoundRobin is the real-time round-robin policy (SCHED_RR).
	RoundRobin
	// FIFO is the real-time first-in first-out policy (SCHED_FIFO).
	FIFO
)

// String returns the POSIX name of the policy.
func (p Policy) String() string {
	switch p {
	case TimeShare:
		return "SCHED_OTHER"
	case RoundRobin:
		return "SCHED_RR"
	case FIFO:
		return "SCHED_FIFO"
	default:
		return "unknown"
	}
}

// ParsePolicy accepts "timeshare"/"other", "rr"/"roundrobin" and "fifo",
// case-insensitively, with or without a "sched_" prefix.
func ParsePolicy(s string) (Policy, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "sched_") {
	case "", "timeshare", "other", "normal":
		return TimeShare, nil
	case "rr", "roundrobin", "round-robin":
		return RoundRobin, nil
	case "fifo":
		return FIFO, nil
	default:
		return TimeShare, fmt.Errorf("policy %q: %w", s, ErrAttribute)
	}
}

// PriorityRange returns the inclusive priority range accepted for p.
func PriorityRange(p Policy) (minPrio, maxPrio int) {
	switch p {
	case RoundRobin, FIFO:
		return 1, 99
	default:
		return 0, 0
	}
}

// Inheritance selects whether workers inherit the creating thread's
// scheduling or use the explicit values of the Config.
type Inheritance int

const (
	Inherit Inheritance = iota
	Explicit
)

// String implements fmt.Stringer.
func (i Inheritance) String() string {
	switch i {
	case Inherit:
		return "Inherit"
	case Explicit:
		return "Explicit"
	default:
		return "unknown"
	}
}

// ParseInheritance accepts "inherit" and "explicit".
func ParseInheritance(s string) (Inheritance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inherit":
		return Inherit, nil
	case "explicit":
		return Explicit, nil
	default:
		return Inherit, fmt.Errorf("inheritance %q: %w", s, ErrAttribute)
	}
}

const (
	// DefaultStackSize is the stack size requested for worker threads.
	DefaultStackSize = 1 << 20
	// DefaultGuardSize is the guard area requested below worker stacks.
	DefaultGuardSize = 4 << 10
	// MinStackSize mirrors PTHREAD_STACK_MIN on Linux.
	MinStackSize = 16 << 10
)

// Config is a validated, read-only scheduling configuration shared by all
// workers of a multiplication.
type Config struct {
	Policy      Policy
	Priority    int
	Inheritance Inheritance

	// StackSize and GuardSize are the per-thread stack budget. The Go
	// runtime owns worker thread stacks, so they are validated and reported
	// but not enforced.
	StackSize uint64
	GuardSize uint64

	// AscendingPriority gives worker w the priority Priority+w.
	AscendingPriority bool

	// CPUs restricts worker threads to these CPUs when non-empty.
	CPUs []int
}

// Option adjusts a Config under construction.
type Option func(*Config)

// WithStackSize sets the stack size in bytes.
func WithStackSize(n uint64) Option { return func(c *Config) { c.StackSize = n } }

// WithGuardSize sets the guard size in bytes.
func WithGuardSize(n uint64) Option { return func(c *Config) { c.GuardSize = n } }

// WithAscendingPriority makes worker priorities ascend by spawn index.
func WithAscendingPriority() Option { return func(c *Config) { c.AscendingPriority = true } }

// WithCPUs pins worker threads to the given CPUs.
func WithCPUs(cpus ...int) Option {
	return func(c *Config) { c.CPUs = lo.Uniq(cpus) }
}

// Default returns the configuration used when the caller has no
// preference: inherited time-sharing scheduling.
func Default() Config {
	return Config{
		Policy:      TimeShare,
		Inheritance: Inherit,
		StackSize:   DefaultStackSize,
		GuardSize:   DefaultGuardSize,
	}
}

// Build validates and packages the scheduling knobs.
func Build(policy Policy, priority int, inheritance Inheritance, opts ...Option) (Config, error) {
	c := Default()
	c.Policy = policy
	c.Priority = priority
	c.Inheritance = inheritance
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every value against the limits of the platform.
func (c Config) Validate() error {
	if c.Policy < TimeShare || c.Policy > FIFO {
		return fmt.Errorf("policy %d: %w", c.Policy, ErrAttribute)
	}
	if c.Inheritance != Inherit && c.Inheritance != Explicit {
		return fmt.Errorf("inheritance %d: %w", c.Inheritance, ErrAttribute)
	}
	if minPrio, maxPrio := PriorityRange(c.Policy); c.Priority < minPrio || c.Priority > maxPrio {
		return fmt.Errorf("priority %d outside [%d, %d] for %s: %w", c.Priority, minPrio, maxPrio, c.Policy, ErrAttribute)
	}
	if c.StackSize < MinStackSize {
		return fmt.Errorf("stack size %d below minimum %d: %w", c.StackSize, MinStackSize, ErrAttribute)
	}
	if page := uint64(pageSize()); c.GuardSize%page != 0 {
		return fmt.Errorf("guard size %d not a multiple of page size %d: %w", c.GuardSize, page, ErrAttribute)
	}
	return c.validateCPUs()
}

func (c Config) validateCPUs() error {
	if len(c.CPUs) == 0 {
		return nil
	}
	if lo.Min(c.CPUs) < 0 {
		return fmt.Errorf("cpu set %v: negative cpu: %w", c.CPUs, ErrAttribute)
	}
	n, err := numcpus.GetConfigured()
	if err != nil {
		// Without a count only the kernel can judge; Apply reports it.
		return nil
	}
	if maxCPU := lo.Max(c.CPUs); maxCPU >= n {
		return fmt.Errorf("cpu %d not in [0, %d): %w", maxCPU, n, ErrAttribute)
	}
	return nil
}

// PriorityFor returns the priority of the worker with the given spawn index.
func (c Config) PriorityFor(worker int) int {
	if c.AscendingPriority {
		return c.Priority + worker
	}
	return c.Priority
}

// ValidateWorkers checks that every priority handed out to n workers is
// valid for the policy. It only matters with AscendingPriority.
func (c Config) ValidateWorkers(n int) error {
	if n < 1 || !c.AscendingPriority || c.Inheritance == Inherit {
		return nil
	}
	last := c.PriorityFor(n - 1)
	if _, maxPrio := PriorityRange(c.Policy); last > maxPrio {
		return fmt.Errorf("%d workers need priority %d, %s allows at most %d: %w", n, last, c.Policy, maxPrio, ErrAttribute)
	}
	return nil
}

// Restorable reports whether a worker thread is left unchanged by Apply and
// can be handed back to the Go scheduler afterwards.
func (c Config) Restorable() bool {
	return c.Inheritance == Inherit && len(c.CPUs) == 0
}

// String renders the attribute summary of worker threads.
func (c Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Detach state:\t\tJoinable\n")
	fmt.Fprintf(&sb, "Stack size:\t\t%s\n", units.BytesSize(float64(c.StackSize)))
	fmt.Fprintf(&sb, "Guard size:\t\t%s\n", units.BytesSize(float64(c.GuardSize)))
	fmt.Fprintf(&sb, "Scheduling policy:\t%s\n", c.Policy)
	if c.AscendingPriority {
		fmt.Fprintf(&sb, "Scheduling priority:\t%d (+1 per worker)\n", c.Priority)
	} else {
		fmt.Fprintf(&sb, "Scheduling priority:\t%d\n", c.Priority)
	}
	fmt.Fprintf(&sb, "Inherit scheduling:\t%s\n", c.Inheritance)
	if len(c.CPUs) > 0 {
		fmt.Fprintf(&sb, "CPU affinity:\t\t%v\n", c.CPUs)
	}
	fmt.Fprintf(&sb, "Cancelability:\t\tENABLED\nCancellation type:\tDEFERRED\n")
	return sb.String()
}
