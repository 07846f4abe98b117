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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values of cellmul_multiplications_total.
const (
	ResultOK              = "ok"
	ResultInvalidArgument = "invalid_argument"
	ResultAllocation      = "allocation"
	ResultAttribute       = "attribute"
	ResultSpawnFailure    = "spawn_failure"
	ResultWorkerPanic     = "worker_panic"
)

// Metrics holds the prometheus collectors of an Engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Multiplications *prometheus.CounterVec
	WorkersSpawned  prometheus.Counter
	Cancellations   prometheus.Counter
	SpawnFailures   prometheus.Counter
	CellsComputed   prometheus.Counter
	Duration        prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Multiplications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellmul",
			Name:      "multiplications_total",
			Help:      "Multiply calls by result.",
		}, []string{"result"}),
		WorkersSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cellmul",
			Name:      "workers_spawned_total",
			Help:      "Workers whose thread setup succeeded.",
		}),
		Cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cellmul",
			Name:      "worker_cancellations_total",
			Help:      "Cancellation requests issued during rollback.",
		}),
		SpawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cellmul",
			Name:      "spawn_failures_total",
			Help:      "Workers that could not be started.",
		}),
		CellsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cellmul",
			Name:      "cells_computed_total",
			Help:      "Result cells written.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cellmul",
			Name:      "multiply_duration_seconds",
			Help:      "Wall time of Multiply calls.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Multiplications, m.WorkersSpawned, m.Cancellations,
			m.SpawnFailures, m.CellsComputed, m.Duration)
	}
	return m
}

func (m *Metrics) spawned() {
	if m != nil {
		m.WorkersSpawned.Inc()
	}
}

func (m *Metrics) cancelled() {
	if m != nil {
		m.Cancellations.Inc()
	}
}

func (m *Metrics) spawnFailed() {
	if m != nil {
		m.SpawnFailures.Inc()
	}
}

func (m *Metrics) computed(n int) {
	if m != nil {
		m.CellsComputed.Add(float64(n))
	}
}

func (m *Metrics) observe(start time.Time, err error) {
	if m == nil {
		return
	}
	m.Duration.Observe(time.Since(start).Seconds())
	m.Multiplications.WithLabelValues(resultLabel(err)).Inc()
}

// resultLabel classifies err. Spawn failures are checked first because
// they also wrap their cause.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrSpawnFailure):
		return ResultSpawnFailure
	case errors.Is(err, ErrAttribute):
		return ResultAttribute
	case errors.Is(err, ErrAllocation):
		return ResultAllocation
	case errors.Is(err, ErrInvalidDimension), errors.Is(err, ErrReleased):
		return ResultInvalidArgument
	default:
		return ResultWorkerPanic
	}
}
