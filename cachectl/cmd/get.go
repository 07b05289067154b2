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
	"errors"
	"flag"
	"os"

	"github.com/google/subcommands"

	"cachesync.dev/cachesync/cachectl/cmd/util"
	"cachesync.dev/cachesync/pkg/config"
	"cachesync.dev/cachesync/pkg/diskcache"
)

// Get implements subcommands.Command for the "get" command.
type Get struct {
	output string
}

// Name implements subcommands.Command.Name.
func (*Get) Name() string {
	return "get"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Get) Synopsis() string {
	return "print a cached entry"
}

// Usage implements subcommands.Command.Usage.
func (*Get) Usage() string {
	return `get [flags] <key> - write the entry stored under key to stdout.

Exits with status 1 if key is not cached.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (g *Get) SetFlags(f *flag.FlagSet) {
	f.StringVar(&g.output, "o", "", "write the entry to this file instead of stdout.")
}

// Execute implements subcommands.Command.Execute.
func (g *Get) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	key := f.Arg(0)
	conf := args[0].(*config.Config)

	var data []byte
	err := withCache(ctx, conf, func(c *diskcache.Cache) error {
		var err error
		data, err = c.Get(ctx, key)
		return err
	})
	if errors.Is(err, diskcache.ErrNotFound) {
		return subcommands.ExitFailure
	}
	if err != nil {
		return util.Errorf("%v", err)
	}

	if g.output != "" {
		if err := os.WriteFile(g.output, data, 0644); err != nil {
			return util.Errorf("error writing output: %v", err)
		}
		return subcommands.ExitSuccess
	}
	if _, err := os.Stdout.Write(data); err != nil {
		return util.Errorf("error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}
