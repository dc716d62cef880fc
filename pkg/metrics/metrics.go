// Copyright 2025 The fawa Authors
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

// Package metrics exports pipeline telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fawa-io/filedrop/pkg/fault"
)

const namespace = "filedrop"

// PrometheusObserver records stage latency, terminal outcomes and stored
// bytes.
type PrometheusObserver struct {
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	uploadedBytes prometheus.Counter
}

// NewPrometheusObserver registers the collectors on reg, or on the default
// registerer when reg is nil. Registering twice reuses the existing
// collectors.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Latency of each upload pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Stage failures by stage and cause kind.",
		}, []string{"stage", "kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Terminal pipeline outcomes by kind; success is reported as \"success\".",
		}, []string{"kind"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative payload size confirmed by the object store.",
		}),
	}

	if err := register(reg, &o.stageDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &o.stageErrors); err != nil {
		return nil, err
	}
	if err := register(reg, &o.outcomes); err != nil {
		return nil, err
	}
	if err := register(reg, &o.uploadedBytes); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			*c = existing
			return nil
		}
	}
	return fmt.Errorf("register metric: %w", err)
}

// RecordStage observes one stage run.
func (o *PrometheusObserver) RecordStage(stage string, d time.Duration, err error) {
	if o == nil {
		return
	}
	o.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		o.stageErrors.WithLabelValues(stage, string(fault.KindOf(err))).Inc()
	}
}

// RecordOutcome counts a terminal outcome.
func (o *PrometheusObserver) RecordOutcome(kind string) {
	if o == nil {
		return
	}
	o.outcomes.WithLabelValues(kind).Inc()
}

func (o *PrometheusObserver) RecordUploadedBytes(n int64) {
	if o == nil || n <= 0 {
		return
	}
	o.uploadedBytes.Add(float64(n))
}
