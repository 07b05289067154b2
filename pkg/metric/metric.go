// Copyright 2026 The cachesync Authors.
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

// Package metric provides primitives for collecting metrics and exporting
// them in the Prometheus text exposition format.
//
// Metrics are named like paths ("/cache/hits"). On export the name is
// prefixed with the registry prefix and slashes become underscores, so
// "/cache/hits" in a registry with prefix "cachesync" is exported as
// "cachesync_cache_hits".
package metric

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInvalidName indicates that a metric name is not a path of lower
	// case words.
	ErrInvalidName = errors.New("invalid metric name")
)

var nameRegexp = regexp.MustCompile(`^(/[a-z0-9_]+)+$`)

// Uint64Metric encapsulates a uint64 that represents some kind of metric to
// be monitored.
type Uint64Metric struct {
	value atomic.Uint64
}

// Value returns the current value of the metric.
func (m *Uint64Metric) Value() uint64 {
	return m.value.Load()
}

// Increment increments the metric by 1.
func (m *Uint64Metric) Increment() {
	m.value.Add(1)
}

// IncrementBy increments the metric by v.
func (m *Uint64Metric) IncrementBy(v uint64) {
	m.value.Add(v)
}

// metric is one registered metric.
type metric struct {
	name        string
	description string
	cumulative  bool
	value       func() uint64
}

// Registry is a set of metrics exported together.
type Registry struct {
	prefix string

	mu sync.Mutex

	// +checklocks:mu
	metrics map[string]metric
}

// NewRegistry returns an empty registry whose exported names start with
// prefix.
func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix:  prefix,
		metrics: make(map[string]metric),
	}
}

func (r *Registry) register(m metric) error {
	if !nameRegexp.MatchString(m.name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, m.name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[m.name]; ok {
		return fmt.Errorf("%w: %q", ErrNameInUse, m.name)
	}
	r.metrics[m.name] = m
	return nil
}

// NewUint64Metric creates and registers a new cumulative metric with the
// given name.
func (r *Registry) NewUint64Metric(name, description string) (*Uint64Metric, error) {
	m := &Uint64Metric{}
	if err := r.register(metric{
		name:        name,
		description: description,
		cumulative:  true,
		value:       m.Value,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns
// an error.
func (r *Registry) MustCreateNewUint64Metric(name, description string) *Uint64Metric {
	m, err := r.NewUint64Metric(name, description)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// RegisterCustomUint64Metric registers a metric whose value is computed by
// value at export time. Cumulative metrics are exported as counters, the
// others as gauges.
func (r *Registry) RegisterCustomUint64Metric(name string, cumulative bool, description string, value func() uint64) error {
	return r.register(metric{
		name:        name,
		description: description,
		cumulative:  cumulative,
		value:       value,
	})
}

// Unregister removes the metric registered under name, if any.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.metrics, name)
}

// Values returns the current value of every metric, keyed by metric name.
func (r *Registry) Values() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	vals := make(map[string]uint64, len(r.metrics))
	for name, m := range r.metrics {
		vals[name] = m.value()
	}
	return vals
}

// ExportedName returns the Prometheus name of a metric.
func (r *Registry) ExportedName(name string) string {
	n := strings.ReplaceAll(name, "/", "_")
	if r.prefix == "" {
		return strings.TrimPrefix(n, "_")
	}
	return r.prefix + n
}

// MetricFamilies returns a snapshot of every metric, sorted by name.
func (r *Registry) MetricFamilies() []*dto.MetricFamily {
	r.mu.Lock()
	ms := make([]metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		ms = append(ms, m)
	}
	r.mu.Unlock()

	sort.Slice(ms, func(i, j int) bool { return ms[i].name < ms[j].name })

	families := make([]*dto.MetricFamily, 0, len(ms))
	for _, m := range ms {
		v := float64(m.value())
		f := &dto.MetricFamily{
			Name: proto.String(r.ExportedName(m.name)),
			Help: proto.String(m.description),
		}
		if m.cumulative {
			f.Type = dto.MetricType_COUNTER.Enum()
			f.Metric = []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}}
		} else {
			f.Type = dto.MetricType_GAUGE.Enum()
			f.Metric = []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}}
		}
		families = append(families, f)
	}
	return families
}

// WriteText writes every metric to w in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	for _, f := range r.MetricFamilies() {
		if _, err := expfmt.MetricFamilyToText(w, f); err != nil {
			return fmt.Errorf("writing metric %q: %w", f.GetName(), err)
		}
	}
	return nil
}
