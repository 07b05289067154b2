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

// Package cmd holds implementations of the cachectl commands.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"cachesync.dev/cachesync/pkg/config"
	"cachesync.dev/cachesync/pkg/diskcache"
	"cachesync.dev/cachesync/pkg/log"
	"cachesync.dev/cachesync/pkg/metric"
)

// metricPrefix starts the exported name of every metric.
const metricPrefix = "cachesync"

// openCache opens the cache configured by conf. Metrics are registered with
// reg if it is not nil.
func openCache(ctx context.Context, conf *config.Config, reg *metric.Registry) (*diskcache.Cache, error) {
	c, err := diskcache.Open(ctx, diskcache.Options{
		Dir:               conf.CacheDir,
		MaxSize:           int64(conf.MaxSize),
		LowWatermark:      conf.LowWatermark,
		FreeSpaceFraction: conf.FreeSpaceFraction,
		SlowLockWarning:   conf.SlowLockWarning,
		Metrics:           reg,
	})
	if errors.Is(err, diskcache.ErrLocked) {
		return nil, fmt.Errorf("%w (is another cachectl running?)", err)
	}
	return c, err
}

// closeCache closes c, logging failures.
func closeCache(c *diskcache.Cache) {
	if err := c.Close(); err != nil {
		log.Log().WithError(err).Warningf("Error closing cache %q", c.Dir())
	}
}

// withCache opens the cache, runs fn and closes the cache.
func withCache(ctx context.Context, conf *config.Config, fn func(c *diskcache.Cache) error) error {
	c, err := openCache(ctx, conf, nil)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer closeCache(c)
	return fn(c)
}

