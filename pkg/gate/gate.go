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

// Package gate provides a usage gate for objects that are shut down while
// other goroutines may still be using them.
package gate

import (
	"sync"
)

// Gate lets goroutines "enter" it as long as it hasn't been closed yet. Once
// it's been closed, goroutines cannot enter it anymore, but are allowed to
// leave, and the closer is informed when all goroutines have left.
//
// Users:
//
//	if !g.Enter() {
//		// Gate is closed, we can't use the object.
//		return
//	}
//	defer g.Leave()
//
//	// Do something with object.
//
// Closer:
//
//	// Prevent new users from using the object, and wait for the existing
//	// ones to complete.
//	g.Close()
//
//	// Clean up the object.
//
// The zero value is an open gate.
type Gate struct {
	mu sync.Mutex

	// +checklocks:mu
	users int

	// +checklocks:mu
	closed bool

	// done is closed when the gate is closed and the last user leaves.
	// +checklocks:mu
	done chan struct{}
}

// Enter tries to enter the gate. It will succeed if it hasn't been closed yet,
// in which case the caller must eventually call Leave.
func (g *Gate) Enter() bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.users++
	return true
}

// Leave leaves the gate. This must only be called after a successful call to
// Enter.
func (g *Gate) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.users == 0 {
		panic("leaving a gate with zero usage count")
	}
	g.users--
	if g.users == 0 && g.done != nil {
		close(g.done)
		g.done = nil
	}
}

// Close closes the gate for entering and waits until every goroutine inside
// it has left. It returns false if the gate was already closed, in which case
// it does not wait.
func (g *Gate) Close() bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.closed = true
	if g.users == 0 {
		g.mu.Unlock()
		return true
	}
	done := make(chan struct{})
	g.done = done
	g.mu.Unlock()

	<-done
	return true
}

// Users returns the number of goroutines inside the gate.
func (g *Gate) Users() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.users
}
