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

// Package config loads engine and scheduling settings from the environment.
//
// Values are resolved in this order: built-in defaults, then the first .env
// file found in the working directory or up to four of its parents (values
// already present in the environment win), then CELLMUL_* variables.
//
//	CELLMUL_SCHED_POLICY        timeshare | rr | fifo
//	CELLMUL_SCHED_PRIORITY      integer
//	CELLMUL_SCHED_INHERIT       inherit | explicit
//	CELLMUL_STACK_SIZE          size such as 1MiB
//	CELLMUL_GUARD_SIZE          size such as 4KiB
//	CELLMUL_ASCENDING_PRIORITY  bool
//	CELLMUL_CPUS                comma separated CPU indices
//	CELLMUL_MAX_WORKERS         integer, <= 0 uses GOMAXPROCS
//	CELLMUL_BATCH_SIZE          integer >= 1
//	CELLMUL_SEED                uint64, 0 is time based
//	CELLMUL_LOG_LEVEL           debug | info | warn | error
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajroetker/go-cellmul/cellmul"
	"github.com/ajroetker/go-cellmul/cellmul/contrib/matrix"
	"github.com/ajroetker/go-cellmul/cellmul/contrib/sched"
)

// Prefix is prepended to every variable name.
const Prefix = "CELLMUL_"

// envSearchDepth is how many directories are searched for a .env file.
const envSearchDepth = 5

// ErrInvalid is wrapped by every parse or validation error.
var ErrInvalid = errors.New("config: invalid value")

// Config holds every knob of an engine run.
type Config struct {
	Policy            sched.Policy
	Priority          int
	Inheritance       sched.Inheritance
	StackSize         uint64
	GuardSize         uint64
	AscendingPriority bool
	CPUs              []int

	MaxWorkers int
	BatchSize  int
	Seed       uint64
	LogLevel   zapcore.Level

	// EnvFile is the .env file that was loaded, if any.
	EnvFile string
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Policy:      sched.TimeShare,
		Inheritance: sched.Inherit,
		StackSize:   sched.DefaultStackSize,
		GuardSize:   sched.DefaultGuardSize,
		BatchSize:   1,
		LogLevel:    zapcore.InfoLevel,
	}
}

// Load resolves the configuration starting the .env search at the working
// directory.
func Load() (*Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom resolves the configuration starting the .env search at dir.
func LoadFrom(dir string) (*Config, error) {
	c := Default()
	path, err := loadEnvFile(dir)
	if err != nil {
		return nil, err
	}
	c.EnvFile = path
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadEnvFile loads the first .env found walking up from dir and returns
// its path.
func loadEnvFile(dir string) (string, error) {
	for range envSearchDepth {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return "", fmt.Errorf("config: load %s: %w", envPath, err)
			}
			return envPath, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

// applyEnv overrides fields from lookup and reports every bad value.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs error
	get := func(name string, parse func(string) error) {
		v, ok := lookup(Prefix + name)
		if !ok {
			return
		}
		if err := parse(strings.TrimSpace(v)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s%s=%q: %w: %w", Prefix, name, v, ErrInvalid, err))
		}
	}

	get("SCHED_POLICY", func(v string) (err error) {
		c.Policy, err = sched.ParsePolicy(v)
		return err
	})
	get("SCHED_PRIORITY", func(v string) (err error) {
		c.Priority, err = strconv.Atoi(v)
		return err
	})
	get("SCHED_INHERIT", func(v string) (err error) {
		c.Inheritance, err = sched.ParseInheritance(v)
		return err
	})
	get("STACK_SIZE", func(v string) (err error) {
		c.StackSize, err = parseSize(v)
		return err
	})
	get("GUARD_SIZE", func(v string) (err error) {
		c.GuardSize, err = parseSize(v)
		return err
	})
	get("ASCENDING_PRIORITY", func(v string) (err error) {
		c.AscendingPriority, err = strconv.ParseBool(v)
		return err
	})
	get("CPUS", func(v string) (err error) {
		c.CPUs, err = parseCPUs(v)
		return err
	})
	get("MAX_WORKERS", func(v string) (err error) {
		c.MaxWorkers, err = strconv.Atoi(v)
		return err
	})
	get("BATCH_SIZE", func(v string) (err error) {
		c.BatchSize, err = strconv.Atoi(v)
		return err
	})
	get("SEED", func(v string) (err error) {
		c.Seed, err = strconv.ParseUint(v, 10, 64)
		return err
	})
	get("LOG_LEVEL", func(v string) (err error) {
		c.LogLevel, err = zapcore.ParseLevel(v)
		return err
	})
	return errs
}

// parseSize accepts binary sizes such as "1MiB", "64k" or plain bytes.
func parseSize(v string) (uint64, error) {
	n, err := units.RAMInBytes(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %d", n)
	}
	return uint64(n), nil
}

// parseCPUs parses "0,2,3". An empty string clears the set.
func parseCPUs(v string) ([]int, error) {
	if v == "" {
		return nil, nil
	}
	var cpus []int
	for _, field := range strings.Split(v, ",") {
		cpu, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, err
		}
		cpus = append(cpus, cpu)
	}
	return cpus, nil
}

// Validate checks the values that Load cannot reject while parsing.
func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size %d: %w", c.BatchSize, ErrInvalid)
	}
	if _, err := c.Sched(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Sched builds the scheduling configuration for worker threads.
func (c *Config) Sched() (sched.Config, error) {
	opts := []sched.Option{
		sched.WithStackSize(c.StackSize),
		sched.WithGuardSize(c.GuardSize),
	}
	if c.AscendingPriority {
		opts = append(opts, sched.WithAscendingPriority())
	}
	if len(c.CPUs) > 0 {
		opts = append(opts, sched.WithCPUs(c.CPUs...))
	}
	return sched.Build(c.Policy, c.Priority, c.Inheritance, opts...)
}

// Logger builds a console logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(c.LogLevel)
	zc.DisableStacktrace = c.LogLevel > zapcore.DebugLevel
	return zc.Build()
}

// Factory creates a matrix factory seeded from the configuration.
func (c *Config) Factory(opts ...matrix.Option) *matrix.Factory {
	return matrix.NewFactory(append([]matrix.Option{matrix.WithSeed(c.Seed)}, opts...)...)
}

// EngineOptions returns the engine options implied by the configuration,
// followed by extra.
func (c *Config) EngineOptions(extra ...cellmul.Option) []cellmul.Option {
	return append([]cellmul.Option{
		cellmul.WithMaxWorkers(c.MaxWorkers),
		cellmul.WithBatchSize(c.BatchSize),
	}, extra...)
}
