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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/google/subcommands"

	"cachesync.dev/cachesync/cachectl/cmd/util"
	"cachesync.dev/cachesync/pkg/config"
	"cachesync.dev/cachesync/pkg/diskcache"
	"cachesync.dev/cachesync/pkg/metric"
)

// Stats implements subcommands.Command for the "stats" command.
type Stats struct {
	format string
}

// Name implements subcommands.Command.Name.
func (*Stats) Name() string {
	return "stats"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stats) Synopsis() string {
	return "print cache statistics"
}

// Usage implements subcommands.Command.Usage.
func (*Stats) Usage() string {
	return `stats [flags] - print cache statistics.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stats) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.format, "format", "text", "output format: text, json, or prometheus.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stats) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	switch s.format {
	case "text", "json", "prometheus":
	default:
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	reg := metric.NewRegistry(metricPrefix)
	c, err := openCache(ctx, conf, reg)
	if err != nil {
		return util.Errorf("opening cache: %v", err)
	}
	defer closeCache(c)

	switch s.format {
	case "json":
		err = writeStatsJSON(os.Stdout, c.Stats())
	case "prometheus":
		err = reg.WriteText(os.Stdout)
	default:
		err = writeStatsText(os.Stdout, c.Dir(), c.Stats())
	}
	if err != nil {
		return util.Errorf("error writing stats: %v", err)
	}
	return subcommands.ExitSuccess
}

func writeStatsJSON(w io.Writer, st diskcache.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func writeStatsText(w io.Writer, dir string, st diskcache.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Directory:\t%s\n", dir)
	fmt.Fprintf(tw, "Entries:\t%d\n", st.Entries)
	fmt.Fprintf(tw, "Size:\t%s of %s\n", units.BytesSize(float64(st.Bytes)), units.BytesSize(float64(st.MaxSize)))
	fmt.Fprintf(tw, "Hits:\t%d\n", st.Hits)
	fmt.Fprintf(tw, "Misses:\t%d\n", st.Misses)
	fmt.Fprintf(tw, "Evictions:\t%d\n", st.Evictions)
	return tw.Flush()
}
