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

package cleanup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// writeTemp creates a temp file the way the disk cache does and removes it
// unless commit is true.
func writeTemp(t *testing.T, dir string, commit bool) string {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	cu := Make(func() { os.Remove(f.Name()) })
	cu.Add(func() { f.Close() })
	defer cu.Clean()

	if _, err := f.WriteString("data"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if commit {
		f.Close()
		cu.Release()
	}
	return f.Name()
}

func TestCleanRemovesFile(t *testing.T) {
	path := writeTemp(t, t.TempDir(), false)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("temp file survived cleanup, stat err: %v", err)
	}
}

func TestReleaseKeepsFile(t *testing.T) {
	path := writeTemp(t, t.TempDir(), true)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("released temp file is gone: %v", err)
	}
}

func TestReverseOrder(t *testing.T) {
	var order []int
	cu := Make(func() { order = append(order, 1) })
	cu.Add(func() { order = append(order, 2) })
	cu.Add(func() { order = append(order, 3) })
	cu.Clean()
	if diff := cmp.Diff([]int{3, 2, 1}, order); diff != "" {
		t.Errorf("cleanup order mismatch (-want +got):\n%s", diff)
	}

	// A second Clean is a no-op.
	cu.Clean()
	if len(order) != 3 {
		t.Errorf("Clean ran cleaners twice: %v", order)
	}
}

func TestReleaseReturnsCleaner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cu := Make(func() { os.Remove(path) })
	undo := cu.Release()
	cu.Clean()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Clean after Release removed the file: %v", err)
	}

	undo()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("released cleaner didn't remove the file, stat err: %v", err)
	}
}

func TestNilFunctions(t *testing.T) {
	var ran []string
	cu := Make(nil)
	cu.Add(nil)
	cu.Add(func() { ran = append(ran, "unlock") })
	cu.Clean()
	if diff := cmp.Diff([]string{"unlock"}, ran); diff != "" {
		t.Errorf("ran mismatch (-want +got):\n%s", diff)
	}

	var zero Cleanup
	zero.Clean()
	zero.Release()()
}
