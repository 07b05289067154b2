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

// Package config provides basic infrastructure to set configuration settings
// for cachectl. The configuration is set by flags to the command line and
// optionally by a TOML or YAML file. Flags set on the command line take
// precedence over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"
)

// Config holds configuration that is not part of the cache contents.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name, plus toml and yaml keys.
//  3. Register a new flag in flags.go, with same name and add a description.
//  4. Add any necessary validation into validate().
type Config struct {
	// CacheDir is the cache directory.
	CacheDir string `flag:"cache-dir" toml:"cache_dir" yaml:"cache_dir"`

	// MaxSize is the size past which the cache is trimmed. Zero sizes the
	// cache from the free space of its filesystem.
	MaxSize Size `flag:"max-size" toml:"max_size" yaml:"max_size"`

	// LowWatermark is the fraction of MaxSize a trim shrinks the cache to.
	LowWatermark float64 `flag:"low-watermark" toml:"low_watermark" yaml:"low_watermark"`

	// FreeSpaceFraction is the share of free space used when MaxSize is 0.
	FreeSpaceFraction float64 `flag:"free-space-fraction" toml:"free_space_fraction" yaml:"free_space_fraction"`

	// SlowLockWarning, if positive, logs lock waits longer than this.
	SlowLockWarning time.Duration `flag:"slow-lock-warning" toml:"slow_lock_warning" yaml:"slow_lock_warning"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log" yaml:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format" toml:"log_format" yaml:"log_format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug" yaml:"debug"`
}

func (c *Config) validate() error {
	if c.MaxSize < 0 {
		return fmt.Errorf("max-size must be positive, got: %d", c.MaxSize)
	}
	if c.LowWatermark <= 0 || c.LowWatermark > 1 {
		return fmt.Errorf("low-watermark must be in (0, 1], got: %v", c.LowWatermark)
	}
	if c.FreeSpaceFraction <= 0 || c.FreeSpaceFraction > 1 {
		return fmt.Errorf("free-space-fraction must be in (0, 1], got: %v", c.FreeSpaceFraction)
	}
	if c.SlowLockWarning < 0 {
		return fmt.Errorf("slow-lock-warning must be positive, got: %v", c.SlowLockWarning)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format %q, must be text or json", c.LogFormat)
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	return deepcopy.Copy(c).(*Config)
}

// defaultCacheDir returns a (hopefully) user-writeable cache directory.
func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "cachesync")
	}
	return filepath.Join(os.TempDir(), "cachesync")
}

// LoadFile decodes the file at path into conf. Settings missing from the
// file keep their value in conf. The format is picked by extension: ".toml",
// ".yaml" or ".yml".
func LoadFile(path string, conf *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, conf)
		if err != nil {
			return fmt.Errorf("decoding config file %q: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown settings in config file %q: %v", path, undecoded)
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(conf); err != nil {
			return fmt.Errorf("decoding config file %q: %w", path, err)
		}
	default:
		return fmt.Errorf("config file %q has unknown extension %q, want .toml, .yaml or .yml", path, ext)
	}
	return nil
}

// Size is a number of bytes. It is written with binary units, e.g. "512MiB".
type Size int64

var sizeUnits = []struct {
	suffix string
	size   int64
}{
	{"PiB", units.PiB},
	{"TiB", units.TiB},
	{"GiB", units.GiB},
	{"MiB", units.MiB},
	{"KiB", units.KiB},
}

// String implements fmt.Stringer. The result parses back to the same value.
func (s *Size) String() string {
	v := int64(*s)
	if v == 0 {
		return "0"
	}
	for _, u := range sizeUnits {
		if v%u.size == 0 {
			return fmt.Sprintf("%d%s", v/u.size, u.suffix)
		}
	}
	return fmt.Sprintf("%d", v)
}

// Set implements flag.Value.
func (s *Size) Set(v string) error {
	n, err := units.RAMInBytes(v)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", v, err)
	}
	if n < 0 {
		return fmt.Errorf("invalid size %q: must be positive", v)
	}
	*s = Size(n)
	return nil
}

// Get implements flag.Getter.
func (s *Size) Get() any {
	return *s
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Size) UnmarshalText(text []byte) error {
	return s.Set(string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
