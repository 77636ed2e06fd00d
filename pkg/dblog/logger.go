// Package dblog is the logging collaborator every storage-core layer takes
// at construction time instead of reaching for the standard logger directly.
package dblog

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Logger is the minimal leveled-logging surface every layer depends on.
type Logger interface {
	Debugf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Warnf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	IsDebugEnabled() bool
}

// CLI is a Logger backed by logrus, colorized the way a terminal session
// expects and plain when stdout isn't a tty (piped to a file, CI logs).
type CLI struct {
	IsDebug       bool
	IsVerbose     bool
	DisableColors bool
}

// NewCLI builds a CLI logger and wires it as logrus's formatter.
func NewCLI(debug, verbose bool) *CLI {
	l := &CLI{IsDebug: debug, IsVerbose: verbose}
	logrus.SetLevel(logrus.TraceLevel)
	logrus.SetFormatter(l)
	if !isatty.IsTerminal(colorable.NewColorableStdout().Fd()) {
		l.DisableColors = true
	}
	return l
}

func (l *CLI) Debugf(format string, x ...interface{}) {
	if l.IsDebug {
		logrus.Tracef(format, x...)
	}
}

func (l *CLI) Infof(format string, x ...interface{}) {
	if l.IsVerbose || l.IsDebug {
		logrus.Debugf(format, x...)
	}
}

func (l *CLI) Warnf(format string, x ...interface{}) {
	logrus.Warnf(format, x...)
}

func (l *CLI) Errorf(format string, x ...interface{}) {
	logrus.Errorf(format, x...)
}

func (l *CLI) IsDebugEnabled() bool {
	return l.IsDebug
}

// Format implements logrus.Formatter, colorizing by level the way a terminal
// front end would.
func (l *CLI) Format(entry *logrus.Entry) ([]byte, error) {
	msg := entry.Message
	if !l.DisableColors {
		switch entry.Level {
		case logrus.TraceLevel:
			msg = color.New(color.Faint).Sprint(msg)
		case logrus.DebugLevel:
			msg = color.New(color.FgBlue).Sprint(msg)
		case logrus.WarnLevel:
			msg = color.New(color.FgYellow).Sprint(msg)
		case logrus.ErrorLevel:
			msg = color.New(color.FgRed).Sprint(msg)
		}
	}
	return []byte(fmt.Sprintf("%s\n", msg)), nil
}

// nilLogger is a Logger that discards everything, used by tests and library
// callers that don't want terminal output.
type nilLogger struct{}

// Nil is the package-wide no-op Logger.
var Nil Logger = nilLogger{}

func (nilLogger) Debugf(string, ...interface{}) {}
func (nilLogger) Infof(string, ...interface{})  {}
func (nilLogger) Warnf(string, ...interface{})  {}
func (nilLogger) Errorf(string, ...interface{}) {}
func (nilLogger) IsDebugEnabled() bool          { return false }
