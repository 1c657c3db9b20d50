// Package rlog is the project-wide logging wrapper around
// github.com/charmbracelet/log: per-component prefixed, leveled loggers,
// plus the banner/section console art the demo binaries print.
package rlog

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger is the leveled, prefixed logger every package in ripnet accepts
// (or falls back to a process-wide default for).
type Logger = log.Logger

var std = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05",
	Prefix:          "ripnet",
})

// Default returns the process-wide fallback logger. Components that are
// constructed without an explicit logger (e.g. a bare *message.Message
// created outside of any peer) log through this one.
func Default() *Logger {
	return std
}

// New returns a logger scoped with the given component prefix, e.g.
// rlog.New("server") or rlog.New("client").
func New(prefix string) *Logger {
	return std.WithPrefix(prefix)
}

// SetLevel adjusts the minimum level of the process-wide default logger.
func SetLevel(level log.Level) {
	std.SetLevel(level)
}
