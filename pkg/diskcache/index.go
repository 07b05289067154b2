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

package diskcache

import (
	"github.com/google/btree"
)

// entry describes one cached file.
type entry struct {
	name  string
	size  int64
	atime int64 // UnixNano of the last access.
}

// lessEntry orders entries from least to most recently used.
func lessEntry(a, b entry) bool {
	if a.atime != b.atime {
		return a.atime < b.atime
	}
	return a.name < b.name
}

// lruIndex tracks cached files by name and by access time. It is not
// synchronized.
type lruIndex struct {
	byAge  *btree.BTreeG[entry]
	byName map[string]entry
	bytes  int64
}

func newLRUIndex() *lruIndex {
	return &lruIndex{
		byAge:  btree.NewG[entry](32, lessEntry),
		byName: make(map[string]entry),
	}
}

// set inserts e, replacing any entry with the same name.
func (x *lruIndex) set(e entry) {
	x.remove(e.name)
	x.byAge.ReplaceOrInsert(e)
	x.byName[e.name] = e
	x.bytes += e.size
}

// touch moves name to the most recently used position. It returns false if
// name is not indexed.
func (x *lruIndex) touch(name string, atime int64) bool {
	e, ok := x.byName[name]
	if !ok {
		return false
	}
	x.byAge.Delete(e)
	e.atime = atime
	x.byAge.ReplaceOrInsert(e)
	x.byName[name] = e
	return true
}

func (x *lruIndex) remove(name string) (entry, bool) {
	e, ok := x.byName[name]
	if !ok {
		return entry{}, false
	}
	x.byAge.Delete(e)
	delete(x.byName, name)
	x.bytes -= e.size
	return e, true
}

// oldest returns the least recently used entry.
func (x *lruIndex) oldest() (entry, bool) {
	return x.byAge.Min()
}

// names returns every indexed name from least to most recently used.
func (x *lruIndex) names() []string {
	names := make([]string, 0, x.byAge.Len())
	x.byAge.Ascend(func(e entry) bool {
		names = append(names, e.name)
		return true
	})
	return names
}

func (x *lruIndex) len() int {
	return len(x.byName)
}
