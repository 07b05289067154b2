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

// Package cli is the main entrypoint for cachectl.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"

	"cachesync.dev/cachesync/cachectl/cmd"
	"cachesync.dev/cachesync/cachectl/cmd/util"
	"cachesync.dev/cachesync/pkg/config"
	"cachesync.dev/cachesync/pkg/log"
)

// versionFlagName is the name of a flag that triggers printing the version.
const versionFlagName = "version"

// version is set at link time.
var version = "dev"

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)
	flag.Bool(versionFlagName, false, "show version and exit.")

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Are we showing the version?
	if flag.Lookup(versionFlagName).Value.(flag.Getter).Get().(bool) {
		fmt.Fprintf(os.Stdout, "cachectl version %s\n", version)
		os.Exit(0)
	}

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		util.Fatalf("%v", err)
	}

	// Set up logging.
	var out io.Writer = os.Stderr
	logFile, err := log.OpenFile(conf.LogFilename)
	if err != nil {
		util.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
	}
	if logFile != nil {
		out = logFile
		util.ErrorLogger = logFile
	}
	level := log.Warning
	if conf.Debug {
		level = log.Debug
	}
	logger, err := log.NewLogger(out, conf.LogFormat, level)
	if err != nil {
		util.Fatalf("%v", err)
	}
	log.SetTarget(logger)

	log.Infof("Version %s, %s, %s, %d CPUs, PID %d", version, runtime.Version(), runtime.GOARCH, runtime.NumCPU(), os.Getpid())
	log.Infof("Args: %v", os.Args)
	log.Debugf("Config: %v", conf.ToFlags())

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(ctx, conf)
	stop()
	if logFile != nil {
		_ = logFile.Close()
	}
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by
// cachectl.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	// Cache commands.
	cb(new(cmd.Put), "")
	cb(new(cmd.Get), "")
	cb(new(cmd.Delete), "")
	cb(new(cmd.Clear), "")
	cb(new(cmd.Trim), "")
	cb(new(cmd.Stats), "")

	const debugGroup = "debug"
	cb(new(cmd.Stress), debugGroup)
}
