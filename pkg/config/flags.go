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

package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"
)

// configFlag names the file that flags are layered over.
const configFlag = "config"

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String(configFlag, "", "TOML or YAML configuration file. Flags set on the command line take precedence over it.")

	// Cache flags.
	flagSet.String("cache-dir", "", "cache directory, default is $XDG_CACHE_HOME/cachesync.")
	flagSet.Var(new(Size), "max-size", "size past which the cache is trimmed, e.g. 512MiB. 0 uses a fraction of the free disk space.")
	flagSet.Float64("low-watermark", 0.8, "fraction of max-size a trim shrinks the cache to.")
	flagSet.Float64("free-space-fraction", 0.1, "fraction of the free disk space used when max-size is 0.")
	flagSet.Duration("slow-lock-warning", 0, "log lock waits longer than this. 0 disables it.")

	// Logging flags.
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("debug", false, "enable debug logging.")
}

// NewFromFlags creates a new Config with values coming from command line
// flags, layered over the file named by the config flag if it is set.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(fl.Value.(flag.Getter).Get())
		obj.Field(i).Set(x)
	}

	if fl := flagSet.Lookup(configFlag); fl != nil && fl.Value.String() != "" {
		fileConf := conf.Clone()
		if err := LoadFile(fl.Value.String(), fileConf); err != nil {
			return nil, err
		}
		set := make(map[string]bool)
		flagSet.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
		overrideFields(fileConf, conf, set)
		conf = fileConf
	}

	if len(conf.CacheDir) == 0 {
		conf.CacheDir = defaultCacheDir()
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// overrideFields copies into dst the fields of src whose flag is in names.
func overrideFields(dst, src *Config, names map[string]bool) {
	dstObj := reflect.ValueOf(dst).Elem()
	srcObj := reflect.ValueOf(src).Elem()
	st := dstObj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok || !names[name] {
			continue
		}
		dstObj.Field(i).Set(srcObj.Field(i))
	}
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(field.Float(), 'g', -1, 64)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
