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

// Package keysync provides a reentrant two-level mutual exclusion primitive:
// exclusive sections scoped to a key, and a global section that excludes
// every keyed section.
//
// Ownership is carried by a context.Context. The first acquisition made with
// a context that carries no owner creates one, and the critical section
// receives a derived context carrying it. Nested acquisitions made with that
// context are reentrant:
//
//	s.WithGlobalLock(ctx, func(ctx context.Context) error {
//		// Passing ctx along is what makes this call reentrant.
//		return s.WithLocalLock(ctx, "key", func(ctx context.Context) error {
//			...
//		})
//	})
//
// A context carrying ownership must not be used by two goroutines at once.
//
// Keys are independent of each other. Acquiring the global lock first stops
// other owners from taking new keys and then waits until every other owner
// that still holds a key is blocked inside the synchronizer, so no other
// keyed section runs while the global section runs. Lock order inversions
// between owners (A holds k1 and wants k2 while B holds k2 and wants k1, or
// the same with the global lock in place of k1) still deadlock, as with any
// mutex.
package keysync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cachesync.dev/cachesync/pkg/log"
)

// keyLock is an entry of the lock table.
type keyLock struct {
	owner *owner
	count int

	// released is closed when the entry leaves the table.
	released chan struct{}
}

// Stats are cumulative counters of a Synchronizer. Reentrant acquisitions are
// not counted.
type Stats struct {
	LocalAcquired   uint64
	LocalContended  uint64
	GlobalAcquired  uint64
	GlobalContended uint64
	Cancelled       uint64
}

type options struct {
	slowWait time.Duration
	logger   log.Logger
}

// Option configures a Synchronizer.
type Option func(*options)

// WithSlowWaitThreshold makes the synchronizer log acquisitions that waited
// longer than d. Zero disables the report.
func WithSlowWaitThreshold(d time.Duration) Option {
	return func(o *options) {
		o.slowWait = d
	}
}

// WithLogger sets the logger used for slow wait reports. The default is the
// global logger, limited to one line per second.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Synchronizer is a keyed reentrant lock with a global lock that dominates
// every key.
//
// The zero value is ready to use.
type Synchronizer[K comparable] struct {
	opts options

	mu sync.Mutex

	// locks is the lock table.
	// +checklocks:mu
	locks map[K]*keyLock

	// owners tracks owners that hold keys or are parked.
	// +checklocks:mu
	owners map[*owner]*ownerState

	// globalOwner is the holder of the global lock, nil when it is free.
	// +checklocks:mu
	globalOwner *owner

	// +checklocks:mu
	globalCount int

	// globalReleased is closed when the global lock is released or a
	// reservation is rolled back.
	// +checklocks:mu
	globalReleased chan struct{}

	// quiesced, if not nil, is closed to wake a global acquirer that is
	// waiting for other key holders to park.
	// +checklocks:mu
	quiesced chan struct{}

	localAcquired   atomic.Uint64
	localContended  atomic.Uint64
	globalAcquired  atomic.Uint64
	globalContended atomic.Uint64
	cancelled       atomic.Uint64
}

// New returns a Synchronizer configured with opts.
func New[K comparable](opts ...Option) *Synchronizer[K] {
	s := &Synchronizer[K]{}
	for _, opt := range opts {
		opt(&s.opts)
	}
	if s.opts.slowWait > 0 && s.opts.logger == nil {
		s.opts.logger = log.BasicRateLimitedLogger(time.Second)
	}
	return s
}

// WithLocalLock runs fn while holding the lock for key and returns its
// result. The lock is released when fn returns or panics.
//
// If the owner carried by ctx already holds key the call proceeds at once.
// Otherwise it waits while another owner holds the global lock and then
// while another owner holds key. If ctx is cancelled while waiting,
// ctx.Err() is returned and nothing stays locked.
func (s *Synchronizer[K]) WithLocalLock(ctx context.Context, key K, fn func(context.Context) error) error {
	ctx, o := withOwner(ctx)
	if err := s.lockLocal(ctx, o, key); err != nil {
		return err
	}
	defer s.unlockLocal(o, key)
	return fn(ctx)
}

// WithGlobalLock runs fn while holding the global lock and returns its
// result. The lock is released when fn returns or panics.
//
// The call is reentrant for the owner carried by ctx. Other owners cannot
// acquire any key or the global lock until it is released. If ctx is
// cancelled while waiting, ctx.Err() is returned and nothing stays locked.
func (s *Synchronizer[K]) WithGlobalLock(ctx context.Context, fn func(context.Context) error) error {
	ctx, o := withOwner(ctx)
	if err := s.lockGlobal(ctx, o); err != nil {
		return err
	}
	defer s.unlockGlobal(o)
	return fn(ctx)
}

// IsLocalLockLocked returns whether any owner holds key. The answer may be
// stale by the time it is used.
func (s *Synchronizer[K]) IsLocalLockLocked(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[key]
	return ok
}

// IsGlobalLockLocked returns whether the global lock is held or reserved.
func (s *Synchronizer[K]) IsGlobalLockLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalOwner != nil
}

// HeldLockKeys returns a snapshot of the keys currently held, in no
// particular order. It is meant for diagnostics and tests.
func (s *Synchronizer[K]) HeldLockKeys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]K, 0, len(s.locks))
	for k := range s.locks {
		keys = append(keys, k)
	}
	return keys
}

// HoldsLocalLock returns whether the owner carried by ctx holds key.
func (s *Synchronizer[K]) HoldsLocalLock(ctx context.Context, key K) bool {
	o := ownerFrom(ctx)
	if o == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	return ok && l.owner == o
}

// HoldsGlobalLock returns whether the owner carried by ctx holds the global
// lock.
func (s *Synchronizer[K]) HoldsGlobalLock(ctx context.Context) bool {
	o := ownerFrom(ctx)
	if o == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalOwner == o && s.globalCount > 0
}

// Stats returns the synchronizer's counters.
func (s *Synchronizer[K]) Stats() Stats {
	return Stats{
		LocalAcquired:   s.localAcquired.Load(),
		LocalContended:  s.localContended.Load(),
		GlobalAcquired:  s.globalAcquired.Load(),
		GlobalContended: s.globalContended.Load(),
		Cancelled:       s.cancelled.Load(),
	}
}

func (s *Synchronizer[K]) lockLocal(ctx context.Context, o *owner, key K) error {
	var start time.Time
	s.mu.Lock()
	for {
		l := s.locks[key]
		if l != nil && l.owner == o {
			l.count++
			s.mu.Unlock()
			return nil
		}

		var wait <-chan struct{}
		switch {
		case s.globalOwner != nil && s.globalOwner != o:
			wait = s.globalReleased
		case l != nil:
			wait = l.released
		default:
			if s.locks == nil {
				s.locks = make(map[K]*keyLock)
			}
			s.locks[key] = &keyLock{
				owner:    o,
				count:    1,
				released: make(chan struct{}),
			}
			s.stateLocked(o).held++
			s.mu.Unlock()

			s.localAcquired.Add(1)
			if !start.IsZero() {
				s.localContended.Add(1)
				s.reportWait(start, "local lock %v", key)
			}
			return nil
		}

		if start.IsZero() {
			start = time.Now()
		}
		if err := s.parkLocked(ctx, o, wait); err != nil {
			s.mu.Unlock()
			s.cancelled.Add(1)
			return err
		}
	}
}

func (s *Synchronizer[K]) unlockLocal(o *owner, key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.locks[key]
	if l == nil || l.owner != o {
		panic("keysync: unlock of a key not held by its owner")
	}
	l.count--
	if l.count > 0 {
		return
	}
	delete(s.locks, key)
	close(l.released)

	st := s.owners[o]
	st.held--
	s.gcOwnerLocked(o, st)
	s.wakeQuiescedLocked()
}

func (s *Synchronizer[K]) lockGlobal(ctx context.Context, o *owner) error {
	var start time.Time
	s.mu.Lock()
	for s.globalOwner != nil {
		if s.globalOwner == o {
			s.globalCount++
			s.mu.Unlock()
			return nil
		}
		if start.IsZero() {
			start = time.Now()
		}
		if err := s.parkLocked(ctx, o, s.globalReleased); err != nil {
			s.mu.Unlock()
			s.cancelled.Add(1)
			return err
		}
	}

	// Reserve the global lock. From here on no other owner takes a new key.
	s.globalOwner = o
	s.globalCount = 1
	s.globalReleased = make(chan struct{})

	// Wait for the keyed sections of other owners to finish or park.
	for !s.quiescentLocked(o) {
		if start.IsZero() {
			start = time.Now()
		}
		if s.quiesced == nil {
			s.quiesced = make(chan struct{})
		}
		wait := s.quiesced
		s.mu.Unlock()
		select {
		case <-wait:
			s.mu.Lock()
		case <-ctx.Done():
			s.mu.Lock()
			s.resetGlobalLocked()
			s.mu.Unlock()
			s.cancelled.Add(1)
			return ctx.Err()
		}
	}
	s.mu.Unlock()

	s.globalAcquired.Add(1)
	if !start.IsZero() {
		s.globalContended.Add(1)
		s.reportWait(start, "global lock")
	}
	return nil
}

func (s *Synchronizer[K]) unlockGlobal(o *owner) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.globalOwner != o || s.globalCount == 0 {
		panic("keysync: unlock of a global lock not held by its owner")
	}
	s.globalCount--
	if s.globalCount == 0 {
		s.resetGlobalLocked()
	}
}

// +checklocks:s.mu
func (s *Synchronizer[K]) resetGlobalLocked() {
	s.globalOwner = nil
	s.globalCount = 0
	close(s.globalReleased)
	s.globalReleased = nil
}

// parkLocked blocks o until wait is closed or ctx is done. s.mu is released
// while blocked and held again on return.
//
// +checklocks:s.mu
func (s *Synchronizer[K]) parkLocked(ctx context.Context, o *owner, wait <-chan struct{}) error {
	st := s.stateLocked(o)
	st.parked++
	s.wakeQuiescedLocked()
	s.mu.Unlock()

	var err error
	select {
	case <-wait:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	st.parked--
	s.gcOwnerLocked(o, st)
	return err
}

// quiescentLocked returns whether every owner other than o that holds a key
// is parked.
//
// +checklocks:s.mu
func (s *Synchronizer[K]) quiescentLocked(o *owner) bool {
	for other, st := range s.owners {
		if other != o && st.held > 0 && st.parked == 0 {
			return false
		}
	}
	return true
}

// +checklocks:s.mu
func (s *Synchronizer[K]) wakeQuiescedLocked() {
	if s.quiesced != nil {
		close(s.quiesced)
		s.quiesced = nil
	}
}

// +checklocks:s.mu
func (s *Synchronizer[K]) stateLocked(o *owner) *ownerState {
	if s.owners == nil {
		s.owners = make(map[*owner]*ownerState)
	}
	st, ok := s.owners[o]
	if !ok {
		st = &ownerState{}
		s.owners[o] = st
	}
	return st
}

// +checklocks:s.mu
func (s *Synchronizer[K]) gcOwnerLocked(o *owner, st *ownerState) {
	if st.held == 0 && st.parked == 0 {
		delete(s.owners, o)
	}
}

func (s *Synchronizer[K]) reportWait(start time.Time, format string, v ...any) {
	if s.opts.slowWait <= 0 {
		return
	}
	waited := time.Since(start)
	if waited < s.opts.slowWait {
		return
	}
	s.opts.logger.Warningf("keysync: waited %v for "+format, append([]any{waited}, v...)...)
}
