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

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&buf, "text", Info)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Warningf("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line logged at Info level: %q", out)
	}
	if got := strings.Count(out, "shown"); got != 2 {
		t.Errorf("got %d lines, want 2: %q", got, out)
	}
	if l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = true at Info level")
	}

	l.SetLevel(Debug)
	if !l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = false after SetLevel(Debug)")
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&buf, "json", Debug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	l.WithField("key", "abc").Warningf("slow wait %v", time.Second)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not json: %v: %q", err, buf.String())
	}
	if got, want := line["msg"], "slow wait 1s"; got != want {
		t.Errorf("msg = %v, want %v", got, want)
	}
	if got, want := line["level"], "warning"; got != want {
		t.Errorf("level = %v, want %v", got, want)
	}
	if got, want := line["key"], "abc"; got != want {
		t.Errorf("key = %v, want %v", got, want)
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&buf, "json", Info)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	l.WithError(errors.New("disk full")).Warningf("close failed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not json: %v: %q", err, buf.String())
	}
	if got, want := line["error"], "disk full"; got != want {
		t.Errorf("error = %v, want %v", got, want)
	}
}

func TestBadFormat(t *testing.T) {
	if _, err := NewLogger(&bytes.Buffer{}, "glog", Info); err == nil {
		t.Fatalf("NewLogger accepted unknown format")
	}
}

func TestLevelText(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{in: "warning", want: Warning},
		{in: "0", want: Warning},
		{in: "info", want: Info},
		{in: "debug", want: Debug},
		{in: "2", want: Debug},
	} {
		t.Run(tc.in, func(t *testing.T) {
			var l Level
			if err := l.UnmarshalText([]byte(tc.in)); err != nil {
				t.Fatalf("UnmarshalText(%q) failed: %v", tc.in, err)
			}
			if l != tc.want {
				t.Errorf("UnmarshalText(%q) = %v, want %v", tc.in, l, tc.want)
			}
		})
	}

	var l Level
	if err := l.UnmarshalText([]byte("trace")); err == nil {
		t.Errorf("UnmarshalText accepted unknown level")
	}
}

type countingLogger struct {
	lines int
}

func (c *countingLogger) Debugf(string, ...any)   { c.lines++ }
func (c *countingLogger) Infof(string, ...any)    { c.lines++ }
func (c *countingLogger) Warningf(string, ...any) { c.lines++ }
func (c *countingLogger) IsLogging(Level) bool    { return true }

func TestRateLimitedLogger(t *testing.T) {
	c := &countingLogger{}
	rl := RateLimitedLogger(c, time.Hour)
	for i := 0; i < 10; i++ {
		rl.Warningf("line %d", i)
	}
	if c.lines != 1 {
		t.Errorf("got %d lines through the limiter, want 1", c.lines)
	}
	if got := Dropped(rl); got != 9 {
		t.Errorf("Dropped = %d, want 9", got)
	}
	if got := Dropped(c); got != 0 {
		t.Errorf("Dropped on plain logger = %d, want 0", got)
	}
}

func TestOpenFile(t *testing.T) {
	f, err := OpenFile("")
	if err != nil || f != nil {
		t.Fatalf("OpenFile(\"\") = %v, %v, want nil, nil", f, err)
	}

	path := filepath.Join(t.TempDir(), "sub", "cachectl.log")
	f, err = OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile(%q) failed: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString("line\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}
