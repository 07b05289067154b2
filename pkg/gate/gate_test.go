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

package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateBasic(t *testing.T) {
	var g Gate

	if !g.Enter() {
		t.Fatalf("Enter failed before Close")
	}
	g.Leave()

	if !g.Close() {
		t.Fatalf("first Close returned false")
	}
	if g.Enter() {
		t.Fatalf("Enter succeeded after Close")
	}
	if g.Close() {
		t.Fatalf("second Close returned true")
	}
}

func TestNilGate(t *testing.T) {
	var g *Gate
	if g.Enter() {
		t.Fatalf("Enter succeeded on nil gate")
	}
}

func TestCloseWaitsForUsers(t *testing.T) {
	var g Gate
	if !g.Enter() {
		t.Fatalf("Enter failed")
	}

	closed := make(chan struct{})
	go func() {
		g.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatalf("Close returned with a user inside the gate")
	case <-time.After(50 * time.Millisecond):
	}
	if g.Users() != 1 {
		t.Errorf("Users() = %d, want 1", g.Users())
	}

	g.Leave()
	select {
	case <-closed:
	case <-time.After(10 * time.Second):
		t.Fatalf("Close didn't return after the last user left")
	}
}

func TestGateConcurrent(t *testing.T) {
	for i := 0; i < 50; i++ {
		testGateConcurrentOnce(t, 10*time.Millisecond)
	}
}

func testGateConcurrentOnce(t *testing.T, d time.Duration) {
	const numGoroutines = 100

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	var g Gate
	closeState := int32(0) // set to 1 before g.Close() and 2 after it returns

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				closedBeforeEnter := atomic.LoadInt32(&closeState) == 2
				if g.Enter() {
					closedBeforeLeave := atomic.LoadInt32(&closeState) == 2
					g.Leave()
					if closedBeforeEnter {
						t.Errorf("Enter succeeded after Close")
						return
					}
					if closedBeforeLeave {
						t.Errorf("Close returned before Leave")
						return
					}
				}
			}
		}()
	}

	time.Sleep(d)
	atomic.StoreInt32(&closeState, 1)
	g.Close()
	atomic.StoreInt32(&closeState, 2)
}
