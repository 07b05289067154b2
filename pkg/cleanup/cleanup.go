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


// Package cleanup keeps an undo stack for multi-step setup, such as opening a
// cache directory or writing a cache file through a temp file.
//
// A typical open path:
//
//	cu := cleanup.Make(func() { lock.Unlock() })
//	defer cu.Clean()
//	if err := step(); err != nil {
//		return nil, err // lock is released
//	}
//	cu.Add(undoStep)
//	...
//	cu.Release() // fully set up, keep everything
//	return c, nil
package cleanup

// Cleanup is a LIFO list of undo functions. The zero value is empty and ready
// to use. A Cleanup must not be copied after first use.
type Cleanup struct {
	undo []func()
}

// Make returns a Cleanup holding f. A nil f yields an empty Cleanup.
func Make(f func()) Cleanup {
	var cu Cleanup
	cu.Add(f)
	return cu
}

// Add pushes f. Nil functions are ignored.
func (cu *Cleanup) Add(f func()) {
	if f != nil {
		cu.undo = append(cu.undo, f)
	}
}

// Clean runs the pushed functions, most recent first, and empties the list.
// Calling Clean again, or after Release, does nothing.
func (cu *Cleanup) Clean() {
	undo := cu.undo
	cu.undo = nil
	runAll(undo)
}

// Release empties the list without running it. The returned function runs
// what was released, for callers that hand the undo work to someone else.
func (cu *Cleanup) Release() func() {
	undo := cu.undo
	cu.undo = nil
	return func() { runAll(undo) }
}

func runAll(undo []func()) {
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}
