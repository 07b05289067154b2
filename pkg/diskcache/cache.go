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

// Package diskcache implements a size-bounded, content-keyed file cache.
//
// Every entry lives in its own file named after the SHA-256 of its key.
// Reads, writes and deletes of an entry run under that entry's key lock, so
// operations on different entries proceed in parallel. Clear and Trim run
// under the global lock and therefore never observe a half-written entry.
// The cache directory is also locked against other processes.
package diskcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"cachesync.dev/cachesync/pkg/cleanup"
	"cachesync.dev/cachesync/pkg/gate"
	"cachesync.dev/cachesync/pkg/keysync"
	"cachesync.dev/cachesync/pkg/log"
	"cachesync.dev/cachesync/pkg/metric"
)

var (
	// ErrNotFound is returned for keys that are not cached.
	ErrNotFound = errors.New("cache entry not found")

	// ErrLocked is returned by Open when another process uses the directory.
	ErrLocked = errors.New("cache directory is locked by another process")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache is closed")
)

const (
	// DefaultLowWatermark is the fraction of MaxSize that Trim shrinks the
	// cache to.
	DefaultLowWatermark = 0.8

	// DefaultFreeSpaceFraction is the share of free disk space used when
	// MaxSize is zero.
	DefaultFreeSpaceFraction = 0.1

	// minAutoSize is the floor of a cache sized from free disk space.
	minAutoSize = 16 << 20
)

// Options configures a Cache.
type Options struct {
	// Dir is the cache directory. It is created if it doesn't exist.
	Dir string

	// MaxSize is the size in bytes past which the cache is trimmed. Zero
	// sizes the cache from the free space of the filesystem.
	MaxSize int64

	// FreeSpaceFraction is the share of free space used when MaxSize is
	// zero.
	FreeSpaceFraction float64

	// LowWatermark is the fraction of MaxSize that a trim shrinks the cache
	// to.
	LowWatermark float64

	// SlowLockWarning, if positive, logs lock waits longer than this.
	SlowLockWarning time.Duration

	// Logger defaults to the global logger, tagged with the cache directory.
	Logger log.Logger

	// Metrics, if set, receives the cache's metrics.
	Metrics *metric.Registry
}

// Stats is a snapshot of the cache's state and counters.
type Stats struct {
	Entries   int
	Bytes     int64
	MaxSize   int64
	Hits      uint64
	Misses    uint64
	Puts      uint64
	Evictions uint64
	HeldKeys  int
	Locks     keysync.Stats
}

// Cache is a disk cache. It is safe for concurrent use.
type Cache struct {
	dir          string
	maxSize      int64
	lowWatermark float64
	log          log.Logger

	dirLock *flock.Flock
	keys    *keysync.Synchronizer[string]
	gate    gate.Gate

	mu sync.Mutex

	// +checklocks:mu
	index *lruIndex

	hits      *metric.Uint64Metric
	misses    *metric.Uint64Metric
	puts      *metric.Uint64Metric
	evictions *metric.Uint64Metric

	// unregisterMetrics removes the cache's metrics from the registry
	// given to Open.
	unregisterMetrics func()
}

// Open opens the cache in opts.Dir, indexing the entries already there.
func Open(ctx context.Context, opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("cache directory not set")
	}
	if opts.MaxSize < 0 {
		return nil, fmt.Errorf("invalid max size %d", opts.MaxSize)
	}
	if opts.LowWatermark == 0 {
		opts.LowWatermark = DefaultLowWatermark
	}
	if opts.LowWatermark < 0 || opts.LowWatermark > 1 {
		return nil, fmt.Errorf("low watermark %v out of range (0, 1]", opts.LowWatermark)
	}
	if opts.FreeSpaceFraction == 0 {
		opts.FreeSpaceFraction = DefaultFreeSpaceFraction
	}
	if opts.Logger == nil {
		opts.Logger = log.Log().WithField("cache", opts.Dir)
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir %q: %w", opts.Dir, err)
	}
	dirLock := flock.New(filepath.Join(opts.Dir, lockFileName))
	locked, err := dirLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("error acquiring lock on cache dir %q: %w", opts.Dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, opts.Dir)
	}
	cu := cleanup.Make(func() { _ = dirLock.Unlock() })
	defer cu.Clean()

	maxSize := opts.MaxSize
	if maxSize == 0 {
		free, err := freeSpace(opts.Dir)
		if err != nil {
			return nil, err
		}
		maxSize = max(int64(float64(free)*opts.FreeSpaceFraction), minAutoSize)
	}

	c := &Cache{
		dir:          opts.Dir,
		maxSize:      maxSize,
		lowWatermark: opts.LowWatermark,
		log:          opts.Logger,
		dirLock:      dirLock,
		keys: keysync.New[string](
			keysync.WithSlowWaitThreshold(opts.SlowLockWarning),
			keysync.WithLogger(log.RateLimitedLogger(opts.Logger, time.Second)),
		),
		index:     newLRUIndex(),
		hits:      &metric.Uint64Metric{},
		misses:    &metric.Uint64Metric{},
		puts:      &metric.Uint64Metric{},
		evictions: &metric.Uint64Metric{},
	}
	if opts.Metrics != nil {
		unregister, err := c.registerMetrics(opts.Metrics)
		if err != nil {
			return nil, err
		}
		cu.Add(unregister)
		c.unregisterMetrics = unregister
	}
	if err := c.load(ctx); err != nil {
		return nil, err
	}

	st := c.Stats()
	c.log.Infof("Opened cache %q: %d entries, %d of %d bytes", c.dir, st.Entries, st.Bytes, c.maxSize)
	cu.Release()
	return c, nil
}

// load indexes the files in the cache directory and removes leftovers of
// interrupted writes.
func (c *Cache) load(ctx context.Context) error {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache dir %q: %w", c.dir, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, de := range dirents {
		name := de.Name()
		if name == lockFileName {
			continue
		}
		if strings.HasPrefix(name, tempPrefix) {
			c.log.Debugf("Removing stale temp file %q", name)
			if err := removeFile(ctx, c.path(name)); err != nil {
				c.log.Warningf("Failed to remove stale temp file %q: %v", name, err)
			}
			continue
		}
		if !de.Type().IsRegular() || !isEntryName(name) {
			c.log.Warningf("Ignoring unexpected file %q in cache dir", name)
			continue
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %q: %w", name, err)
		}
		c.index.set(entry{
			name:  name,
			size:  info.Size(),
			atime: info.ModTime().UnixNano(),
		})
	}
	return nil
}

// registerMetrics registers the cache's metrics with r and returns a function
// that unregisters them. On failure nothing stays registered.
func (c *Cache) registerMetrics(r *metric.Registry) (func(), error) {
	var names []string
	unregister := func() {
		for _, name := range names {
			r.Unregister(name)
		}
	}
	cu := cleanup.Make(unregister)
	defer cu.Clean()

	for _, m := range []struct {
		name string
		desc string
		dst  **metric.Uint64Metric
	}{
		{name: "/cache/hits", desc: "Number of reads served from the cache.", dst: &c.hits},
		{name: "/cache/misses", desc: "Number of reads of keys that were not cached.", dst: &c.misses},
		{name: "/cache/puts", desc: "Number of entries written.", dst: &c.puts},
		{name: "/cache/evictions", desc: "Number of entries evicted by trimming.", dst: &c.evictions},
	} {
		counter, err := r.NewUint64Metric(m.name, m.desc)
		if err != nil {
			return nil, err
		}
		names = append(names, m.name)
		*m.dst = counter
	}

	for _, m := range []struct {
		name       string
		cumulative bool
		desc       string
		value      func() uint64
	}{
		{"/cache/entries", false, "Number of cached entries.", func() uint64 { return uint64(c.Stats().Entries) }},
		{"/cache/bytes", false, "Bytes used by cached entries.", func() uint64 { return uint64(c.Stats().Bytes) }},
		{"/cache/max_bytes", false, "Size past which the cache is trimmed.", func() uint64 { return uint64(c.maxSize) }},
		{"/locks/held", false, "Number of keys currently locked.", func() uint64 { return uint64(len(c.keys.HeldLockKeys())) }},
		{"/locks/local_acquired", true, "Number of key lock acquisitions.", func() uint64 { return c.keys.Stats().LocalAcquired }},
		{"/locks/local_contended", true, "Number of key lock acquisitions that had to wait.", func() uint64 { return c.keys.Stats().LocalContended }},
		{"/locks/global_acquired", true, "Number of global lock acquisitions.", func() uint64 { return c.keys.Stats().GlobalAcquired }},
		{"/locks/global_contended", true, "Number of global lock acquisitions that had to wait.", func() uint64 { return c.keys.Stats().GlobalContended }},
		{"/locks/cancelled", true, "Number of lock waits abandoned because the context was done.", func() uint64 { return c.keys.Stats().Cancelled }},
	} {
		if err := r.RegisterCustomUint64Metric(m.name, m.cumulative, m.desc, m.value); err != nil {
			return nil, err
		}
		names = append(names, m.name)
	}
	cu.Release()
	return unregister, nil
}

func (c *Cache) path(name string) string {
	return filepath.Join(c.dir, name)
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// MaxSize returns the size in bytes past which the cache is trimmed.
func (c *Cache) MaxSize() int64 {
	return c.maxSize
}

// Put stores the contents of r under key, replacing any previous entry, and
// returns the number of bytes written. If the cache grows past its maximum
// size it is trimmed before Put returns.
func (c *Cache) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	if !c.gate.Enter() {
		return 0, ErrClosed
	}
	defer c.gate.Leave()

	name := fileName(key)
	var (
		n    int64
		over bool
	)
	err := c.keys.WithLocalLock(ctx, name, func(ctx context.Context) error {
		var err error
		n, err = writeFileAtomic(c.path(name), r)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.index.set(entry{name: name, size: n, atime: time.Now().UnixNano()})
		over = c.index.bytes > c.maxSize
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("put %q: %w", key, err)
	}
	c.puts.Increment()

	if over {
		if _, err := c.trim(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Get returns the contents stored under key, or ErrNotFound.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if !c.gate.Enter() {
		return nil, ErrClosed
	}
	defer c.gate.Leave()

	name := fileName(key)
	var data []byte
	err := c.keys.WithLocalLock(ctx, name, func(ctx context.Context) error {
		b, err := os.ReadFile(c.path(name))
		if errors.Is(err, fs.ErrNotExist) {
			c.mu.Lock()
			c.index.remove(name)
			c.mu.Unlock()
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		c.touch(ctx, name, int64(len(b)))
		data = b
		return nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		c.misses.Increment()
		return nil, fmt.Errorf("get %q: %w", key, err)
	case err != nil:
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	c.hits.Increment()
	return data, nil
}

// touch records an access to name.
func (c *Cache) touch(ctx context.Context, name string, size int64) {
	if !c.keys.HoldsLocalLock(ctx, name) {
		panic(fmt.Sprintf("touch of %q without its key lock", name))
	}
	now := time.Now()
	if err := os.Chtimes(c.path(name), now, now); err != nil {
		c.log.Debugf("Failed to update access time of %q: %v", name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.index.touch(name, now.UnixNano()) {
		c.index.set(entry{name: name, size: size, atime: now.UnixNano()})
	}
}

// Contains returns whether key is cached.
func (c *Cache) Contains(ctx context.Context, key string) (bool, error) {
	if !c.gate.Enter() {
		return false, ErrClosed
	}
	defer c.gate.Leave()

	name := fileName(key)
	found := false
	err := c.keys.WithLocalLock(ctx, name, func(ctx context.Context) error {
		_, err := os.Lstat(c.path(name))
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, fs.ErrNotExist):
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return false, fmt.Errorf("contains %q: %w", key, err)
	}
	return found, nil
}

// Delete removes the entry stored under key, or returns ErrNotFound.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.gate.Enter() {
		return ErrClosed
	}
	defer c.gate.Leave()

	name := fileName(key)
	err := c.keys.WithLocalLock(ctx, name, func(ctx context.Context) error {
		_, statErr := os.Lstat(c.path(name))
		if statErr == nil {
			if err := removeFile(ctx, c.path(name)); err != nil {
				return err
			}
		}
		c.mu.Lock()
		_, indexed := c.index.remove(name)
		c.mu.Unlock()
		if errors.Is(statErr, fs.ErrNotExist) && !indexed {
			return ErrNotFound
		}
		if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
			return statErr
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Clear removes every entry. It runs under the global lock.
func (c *Cache) Clear(ctx context.Context) error {
	if !c.gate.Enter() {
		return ErrClosed
	}
	defer c.gate.Leave()

	return c.keys.WithGlobalLock(ctx, func(ctx context.Context) error {
		dirents, err := os.ReadDir(c.dir)
		if err != nil {
			return fmt.Errorf("clear: reading cache dir: %w", err)
		}
		var errs []error
		removed := 0
		for _, de := range dirents {
			name := de.Name()
			if name == lockFileName || de.IsDir() {
				continue
			}
			if err := removeFile(ctx, c.path(name)); err != nil {
				errs = append(errs, err)
				continue
			}
			c.mu.Lock()
			c.index.remove(name)
			c.mu.Unlock()
			removed++
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		c.log.Infof("Cleared cache %q: %d files removed", c.dir, removed)
		return nil
	})
}

// Trim evicts least recently used entries until the cache is no larger than
// its low watermark, and returns the number of evicted entries. It runs under
// the global lock. Entries whose file can't be removed are dropped from the
// index and reported in the returned error.
func (c *Cache) Trim(ctx context.Context) (int, error) {
	if !c.gate.Enter() {
		return 0, ErrClosed
	}
	defer c.gate.Leave()
	return c.trim(ctx)
}

func (c *Cache) trim(ctx context.Context) (int, error) {
	target := int64(float64(c.maxSize) * c.lowWatermark)
	removed := 0
	err := c.keys.WithGlobalLock(ctx, func(ctx context.Context) error {
		var errs []error
		for {
			c.mu.Lock()
			e, ok := c.index.oldest()
			over := c.index.bytes > target
			c.mu.Unlock()
			if !ok || !over {
				break
			}
			err := removeFile(ctx, c.path(e.name))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// An entry that can't be removed is forgotten, so that it
			// doesn't block every later trim.
			c.mu.Lock()
			c.index.remove(e.name)
			c.mu.Unlock()
			if err != nil {
				c.log.Warningf("Failed to evict %q, dropping it from the index: %v", e.name, err)
				errs = append(errs, fmt.Errorf("evicting %s: %w", e.name, err))
				continue
			}
			c.evictions.Increment()
			removed++
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("trim: %w", err)
		}
		return nil
	})
	if removed > 0 {
		c.log.Debugf("Trimmed cache %q: %d entries evicted", c.dir, removed)
	}
	return removed, err
}

// Stats returns a snapshot of the cache's state and counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries, bytes := c.index.len(), c.index.bytes
	c.mu.Unlock()
	return Stats{
		Entries:   entries,
		Bytes:     bytes,
		MaxSize:   c.maxSize,
		Hits:      c.hits.Value(),
		Misses:    c.misses.Value(),
		Puts:      c.puts.Value(),
		Evictions: c.evictions.Value(),
		HeldKeys:  len(c.keys.HeldLockKeys()),
		Locks:     c.keys.Stats(),
	}
}

// Close waits for in-flight operations, refuses new ones, unregisters the
// cache's metrics and releases the cache directory.
func (c *Cache) Close() error {
	if !c.gate.Close() {
		return ErrClosed
	}
	if c.unregisterMetrics != nil {
		c.unregisterMetrics()
	}
	if err := c.dirLock.Unlock(); err != nil {
		return fmt.Errorf("error releasing lock on cache dir %q: %w", c.dir, err)
	}
	return nil
}
