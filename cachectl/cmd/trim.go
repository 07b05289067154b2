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

package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/docker/go-units"
	"github.com/google/subcommands"

	"cachesync.dev/cachesync/cachectl/cmd/util"
	"cachesync.dev/cachesync/pkg/config"
	"cachesync.dev/cachesync/pkg/diskcache"
)

// Trim implements subcommands.Command for the "trim" command.
type Trim struct{}

// Name implements subcommands.Command.Name.
func (*Trim) Name() string {
	return "trim"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Trim) Synopsis() string {
	return "evict least recently used entries"
}

// Usage implements subcommands.Command.Usage.
func (*Trim) Usage() string {
	return `trim - evict least recently used entries until the cache is no larger
than --low-watermark times --max-size.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Trim) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Trim) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	var (
		removed int
		st      diskcache.Stats
	)
	if err := withCache(ctx, conf, func(c *diskcache.Cache) error {
		var err error
		removed, err = c.Trim(ctx)
		st = c.Stats()
		return err
	}); err != nil {
		return util.Errorf("%v", err)
	}
	fmt.Printf("Evicted %d entries, %s of %s used\n", removed, units.BytesSize(float64(st.Bytes)), units.BytesSize(float64(st.MaxSize)))
	return subcommands.ExitSuccess
}
