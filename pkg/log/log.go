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

// Package log implements a library for logging.
//
// Callers log through the package-level functions (Debugf, Infof, Warningf)
// or through a Logger handed to them. The global target is a logrus logger
// writing text to stderr at Info level until SetTarget replaces it.
package log

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Logger is a high-level logging interface. It is, in fact, not used within
// the log package. Rather it is provided for others to provide contextual
// loggers that may append some addition information to log statement.
type Logger interface {
	// Debugf logs a debug statement.
	Debugf(format string, v ...any)

	// Infof logs at an info level.
	Infof(format string, v ...any)

	// Warningf logs at a warning level.
	Warningf(format string, v ...any)

	// IsLogging returns true iff this level is being logged. This may be
	// used to short-circuit expensive operations for debugging calls.
	IsLogging(level Level) bool
}

// BasicLogger is the default implementation of Logger.
type BasicLogger struct {
	entry *logrus.Entry
}

var _ Logger = (*BasicLogger)(nil)

// NewLogger returns a BasicLogger writing to out in the given format
// ("text" or "json") at the given level.
func NewLogger(out io.Writer, format string, level Level) (*BasicLogger, error) {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level.logrus())
	switch format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "0102 15:04:05.000000",
		})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q, must be 'text' or 'json'", format)
	}
	return &BasicLogger{entry: logrus.NewEntry(l)}, nil
}

// WithField returns a logger that attaches key=value to every line.
func (l *BasicLogger) WithField(key string, value any) *BasicLogger {
	return &BasicLogger{entry: l.entry.WithField(key, value)}
}

// WithError returns a logger that attaches err to every line.
func (l *BasicLogger) WithError(err error) *BasicLogger {
	return &BasicLogger{entry: l.entry.WithError(err)}
}

// Debugf implements Logger.Debugf.
func (l *BasicLogger) Debugf(format string, v ...any) {
	l.entry.Debugf(format, v...)
}

// Infof implements Logger.Infof.
func (l *BasicLogger) Infof(format string, v ...any) {
	l.entry.Infof(format, v...)
}

// Warningf implements Logger.Warningf.
func (l *BasicLogger) Warningf(format string, v ...any) {
	l.entry.Warnf(format, v...)
}

// IsLogging implements Logger.IsLogging.
func (l *BasicLogger) IsLogging(level Level) bool {
	return l.entry.Logger.IsLevelEnabled(level.logrus())
}

// SetLevel sets the level of the underlying logrus logger. Loggers derived
// with WithField share it.
func (l *BasicLogger) SetLevel(level Level) {
	l.entry.Logger.SetLevel(level.logrus())
}

// log is the default logger.
var log atomic.Pointer[BasicLogger]

func init() {
	l, err := NewLogger(os.Stderr, "text", Info)
	if err != nil {
		panic(err)
	}
	log.Store(l)
}

// Log retrieves the global logger.
func Log() *BasicLogger {
	return log.Load()
}

// SetTarget sets the log target.
func SetTarget(target *BasicLogger) {
	log.Store(target)
}

// SetLevel sets the log level of the global logger.
func SetLevel(newLevel Level) {
	Log().SetLevel(newLevel)
}

// IsLogging returns whether the global logger is logging.
func IsLogging(level Level) bool {
	return Log().IsLogging(level)
}

// Debugf logs to the global logger.
func Debugf(format string, v ...any) {
	Log().Debugf(format, v...)
}

// Infof logs to the global logger.
func Infof(format string, v ...any) {
	Log().Infof(format, v...)
}

// Warningf logs to the global logger.
func Warningf(format string, v ...any) {
	Log().Warningf(format, v...)
}
