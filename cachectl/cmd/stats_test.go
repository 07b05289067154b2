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

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cachesync.dev/cachesync/pkg/config"
	"cachesync.dev/cachesync/pkg/diskcache"
	"cachesync.dev/cachesync/pkg/metric"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		CacheDir:          t.TempDir(),
		MaxSize:           1 << 20,
		LowWatermark:      0.8,
		FreeSpaceFraction: 0.1,
		LogFormat:         "text",
	}
}

func TestStatsOutput(t *testing.T) {
	ctx := context.Background()
	conf := testConfig(t)
	reg := metric.NewRegistry(metricPrefix)
	c, err := openCache(ctx, conf, reg)
	if err != nil {
		t.Fatalf("openCache failed: %v", err)
	}
	defer closeCache(c)
	if _, err := c.Put(ctx, "key", strings.NewReader("value")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var text bytes.Buffer
	if err := writeStatsText(&text, c.Dir(), c.Stats()); err != nil {
		t.Fatalf("writeStatsText failed: %v", err)
	}
	for _, want := range []string{"Entries:", "5B of 1MiB"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("text stats %q don't contain %q", text.String(), want)
		}
	}

	var js bytes.Buffer
	if err := writeStatsJSON(&js, c.Stats()); err != nil {
		t.Fatalf("writeStatsJSON failed: %v", err)
	}
	var got diskcache.Stats
	if err := json.Unmarshal(js.Bytes(), &got); err != nil {
		t.Fatalf("json stats don't parse: %v", err)
	}
	if diff := cmp.Diff(c.Stats(), got); diff != "" {
		t.Errorf("json stats mismatch (-want +got):\n%s", diff)
	}

	var prom bytes.Buffer
	if err := reg.WriteText(&prom); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	if !strings.Contains(prom.String(), "cachesync_cache_puts 1") {
		t.Errorf("prometheus output missing puts counter:\n%s", prom.String())
	}
}

func TestWithCacheLocked(t *testing.T) {
	ctx := context.Background()
	conf := testConfig(t)
	c, err := openCache(ctx, conf, nil)
	if err != nil {
		t.Fatalf("openCache failed: %v", err)
	}
	defer closeCache(c)

	err = withCache(ctx, conf, func(*diskcache.Cache) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "another cachectl") {
		t.Errorf("withCache on a locked dir got err %v, want lock error", err)
	}
}
