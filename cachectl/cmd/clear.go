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

	"github.com/google/subcommands"

	"cachesync.dev/cachesync/cachectl/cmd/util"
	"cachesync.dev/cachesync/pkg/config"
	"cachesync.dev/cachesync/pkg/diskcache"
)

// Clear implements subcommands.Command for the "clear" command.
type Clear struct{}

// Name implements subcommands.Command.Name.
func (*Clear) Name() string {
	return "clear"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Clear) Synopsis() string {
	return "remove every entry from the cache"
}

// Usage implements subcommands.Command.Usage.
func (*Clear) Usage() string {
	return `clear - remove every entry from the cache.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Clear) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Clear) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	if err := withCache(ctx, conf, func(c *diskcache.Cache) error {
		return c.Clear(ctx)
	}); err != nil {
		return util.Errorf("%v", err)
	}
	fmt.Printf("Cleared %s\n", conf.CacheDir)
	return subcommands.ExitSuccess
}
