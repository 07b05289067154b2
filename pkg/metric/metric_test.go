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

package metric

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	fooDescription     = "Foo!"
	barDescription     = "Bar Baz"
	counterDescription = "Counter"
)

func TestRegister(t *testing.T) {
	r := NewRegistry("test")

	if _, err := r.NewUint64Metric("/foo", fooDescription); err != nil {
		t.Fatalf("NewUint64Metric got err %v want nil", err)
	}
	if _, err := r.NewUint64Metric("/foo", barDescription); !errors.Is(err, ErrNameInUse) {
		t.Errorf("duplicate NewUint64Metric got err %v want %v", err, ErrNameInUse)
	}
	for _, name := range []string{"", "foo", "/Foo", "/foo/", "/foo bar"} {
		if _, err := r.NewUint64Metric(name, fooDescription); !errors.Is(err, ErrInvalidName) {
			t.Errorf("NewUint64Metric(%q) got err %v want %v", name, err, ErrInvalidName)
		}
	}
}

func TestUnregister(t *testing.T) {
	r := NewRegistry("test")
	r.MustCreateNewUint64Metric("/foo", fooDescription)
	r.Unregister("/foo")
	r.Unregister("/never/registered")
	if got := len(r.Values()); got != 0 {
		t.Errorf("Values() has %d metrics after Unregister, want 0", got)
	}
	if _, err := r.NewUint64Metric("/foo", barDescription); err != nil {
		t.Errorf("NewUint64Metric after Unregister got err %v want nil", err)
	}
}

func TestValues(t *testing.T) {
	r := NewRegistry("test")
	c := r.MustCreateNewUint64Metric("/counter", counterDescription)
	c.Increment()
	c.IncrementBy(4)

	gauge := uint64(7)
	if err := r.RegisterCustomUint64Metric("/gauge", false, barDescription, func() uint64 { return gauge }); err != nil {
		t.Fatalf("RegisterCustomUint64Metric failed: %v", err)
	}

	want := map[string]uint64{"/counter": 5, "/gauge": 7}
	if diff := cmp.Diff(want, r.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}

	gauge = 3
	if got := r.Values()["/gauge"]; got != 3 {
		t.Errorf("custom metric = %d, want 3", got)
	}
}

func TestExportedName(t *testing.T) {
	for _, tc := range []struct {
		prefix string
		name   string
		want   string
	}{
		{prefix: "cachesync", name: "/cache/hits", want: "cachesync_cache_hits"},
		{prefix: "", name: "/cache/hits", want: "cache_hits"},
	} {
		if got := NewRegistry(tc.prefix).ExportedName(tc.name); got != tc.want {
			t.Errorf("ExportedName(%q) with prefix %q = %q, want %q", tc.name, tc.prefix, got, tc.want)
		}
	}
}

func TestWriteTextParses(t *testing.T) {
	r := NewRegistry("cachesync")
	hits := r.MustCreateNewUint64Metric("/cache/hits", "Number of cache hits.")
	hits.IncrementBy(42)
	if err := r.RegisterCustomUint64Metric("/cache/bytes", false, "Bytes stored.", func() uint64 { return 1024 }); err != nil {
		t.Fatalf("RegisterCustomUint64Metric failed: %v", err)
	}

	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}

	parsed, err := (&expfmt.TextParser{}).TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("exported text doesn't parse: %v", err)
	}

	for _, tc := range []struct {
		name  string
		typ   dto.MetricType
		value float64
	}{
		{name: "cachesync_cache_hits", typ: dto.MetricType_COUNTER, value: 42},
		{name: "cachesync_cache_bytes", typ: dto.MetricType_GAUGE, value: 1024},
	} {
		f, ok := parsed[tc.name]
		if !ok {
			t.Errorf("metric %q not found in %v", tc.name, parsed)
			continue
		}
		if f.GetType() != tc.typ {
			t.Errorf("metric %q has type %v, want %v", tc.name, f.GetType(), tc.typ)
		}
		if len(f.GetMetric()) != 1 {
			t.Errorf("metric %q has %d data points, want 1", tc.name, len(f.GetMetric()))
			continue
		}
		m := f.GetMetric()[0]
		var got float64
		if tc.typ == dto.MetricType_COUNTER {
			got = m.GetCounter().GetValue()
		} else {
			got = m.GetGauge().GetValue()
		}
		if got != tc.value {
			t.Errorf("metric %q = %v, want %v", tc.name, got, tc.value)
		}
	}
}
