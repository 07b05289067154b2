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

	"github.com/google/subcommands"

	"cachesync.dev/cachesync/cachectl/cmd/util"
	"cachesync.dev/cachesync/pkg/config"
	"cachesync.dev/cachesync/pkg/diskcache"
	"cachesync.dev/cachesync/pkg/log"
)

// Delete implements subcommands.Command for the "delete" command.
type Delete struct {
	force bool
}

// Name implements subcommands.Command.Name.
func (*Delete) Name() string {
	return "delete"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Delete) Synopsis() string {
	return "remove entries from the cache"
}

// Usage implements subcommands.Command.Usage.
func (*Delete) Usage() string {
	return `delete [flags] <key>... - remove the entries stored under the given keys.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Delete) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&d.force, "force", false, "ignore keys that are not cached.")
}

// Execute implements subcommands.Command.Execute.
func (d *Delete) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	if err := withCache(ctx, conf, func(c *diskcache.Cache) error {
		var errs []error
		for _, key := range f.Args() {
			err := c.Delete(ctx, key)
			switch {
			case err == nil:
				log.Debugf("Deleted %q", key)
			case d.force && errors.Is(err, diskcache.ErrNotFound):
				log.Debugf("Ignoring missing key %q", key)
			default:
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}); err != nil {
		return util.Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}
