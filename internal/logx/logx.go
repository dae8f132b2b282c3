// Package logx routes progress and warning messages to a writer through
// pterm prefix printers.
package logx

import (
	"io"

	"github.com/pterm/pterm"
)

// Level controls which messages are printed.
type Level int

const (
	Quiet   Level = iota // warnings only
	Normal               // warnings and info
	Verbose              // everything
)

// Logger prints prefixed messages. The zero value and a nil *Logger discard
// everything.
type Logger struct {
	level Level
	warn  *pterm.PrefixPrinter
	info  *pterm.PrefixPrinter
	debug *pterm.PrefixPrinter
}

// New returns a logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		level: level,
		warn:  pterm.Warning.WithWriter(w),
		info:  pterm.Info.WithWriter(w),
		debug: pterm.Debug.WithWriter(w).WithDebugger(false),
	}
}

// Discard returns a logger that prints nothing.
func Discard() *Logger {
	return &Logger{}
}

// Warnf prints a warning.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil || l.warn == nil {
		return
	}
	l.warn.Printfln(format, args...)
}

// Infof prints a progress message unless the logger is quiet.
func (l *Logger) Infof(format string, args ...any) {
	if l == nil || l.info == nil || l.level < Normal {
		return
	}
	l.info.Printfln(format, args...)
}

// Debugf prints a message in verbose mode only.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || l.debug == nil || l.level < Verbose {
		return
	}
	l.debug.Printfln(format, args...)
}

// DisableColor turns off ANSI styling for all pterm output.
func DisableColor() {
	pterm.DisableColor()
}
