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
	"io"
	"os"

	"github.com/docker/go-units"
	"github.com/google/subcommands"

	"cachesync.dev/cachesync/cachectl/cmd/util"
	"cachesync.dev/cachesync/pkg/config"
	"cachesync.dev/cachesync/pkg/diskcache"
	"cachesync.dev/cachesync/pkg/log"
)

// Put implements subcommands.Command for the "put" command.
type Put struct{}

// Name implements subcommands.Command.Name.
func (*Put) Name() string {
	return "put"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Put) Synopsis() string {
	return "store a file in the cache"
}

// Usage implements subcommands.Command.Usage.
func (*Put) Usage() string {
	return `put [flags] <key> [file] - store file, or stdin if file is omitted, under key.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Put) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Put) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 1 || f.NArg() > 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	key := f.Arg(0)
	conf := args[0].(*config.Config)

	var in io.Reader = os.Stdin
	if f.NArg() == 2 {
		file, err := os.Open(f.Arg(1))
		if err != nil {
			return util.Errorf("error opening input: %v", err)
		}
		defer file.Close()
		in = file
	}

	var n int64
	if err := withCache(ctx, conf, func(c *diskcache.Cache) error {
		var err error
		n, err = c.Put(ctx, key, in)
		return err
	}); err != nil {
		return util.Errorf("%v", err)
	}
	log.Debugf("Stored %d bytes under %q", n, key)
	fmt.Printf("%s\n", units.HumanSize(float64(n)))
	return subcommands.ExitSuccess
}
