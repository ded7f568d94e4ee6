// Package logging provides the console logger used by the orchestrator and
// the capturing logger used to buffer diagnostic output in tests.
package logging

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger is the minimal printf-style interface threaded through components
// that only need to emit diagnostic lines.
type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Printf(message string, args ...interface{}) {}

func NullLogger() Logger { return nullLogger{} }

// Level controls which messages a LevelLogger emits.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// ParseLevel maps the CLI log-level names onto Level values. "fatal" is
// accepted as a synonym for the most severe level.
func ParseLevel(name string) (Level, error) {
	switch name {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warn":
		return Warn, nil
	case "fatal", "error":
		return Error, nil
	}
	return Info, fmt.Errorf("unknown log level %q (valid: debug, info, warn, fatal)", name)
}

var levelLabels = map[Level]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARNING",
	Error: "ERROR",
}

var levelColors = map[Level]*color.Color{
	Debug: color.New(color.FgGreen),
	Info:  color.New(color.FgCyan),
	Warn:  color.New(color.FgYellow),
	Error: color.New(color.FgRed, color.Bold),
}

// LevelLogger writes timestamped, per-level colorized lines to a single
// destination. Safe for use from multiple goroutines.
type LevelLogger struct {
	dest       io.Writer
	minLevel   Level
	timestamps bool
	lock       sync.Mutex
}

func NewLevelLogger(dest io.Writer, minLevel Level, timestamps bool) *LevelLogger {
	return &LevelLogger{dest: dest, minLevel: minLevel, timestamps: timestamps}
}

func (l *LevelLogger) logf(level Level, message string, args ...interface{}) {
	if level < l.minLevel {
		return
	}
	line := fmt.Sprintf(message, args...)
	label := levelColors[level].Sprintf("%-7s", levelLabels[level])
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.timestamps {
		fmt.Fprintf(l.dest, "%s %s %s\n", time.Now().Format(timestampFormat), label, line)
	} else {
		fmt.Fprintf(l.dest, "%s %s\n", label, line)
	}
}

func (l *LevelLogger) Debugf(message string, args ...interface{}) { l.logf(Debug, message, args...) }
func (l *LevelLogger) Infof(message string, args ...interface{})  { l.logf(Info, message, args...) }
func (l *LevelLogger) Warnf(message string, args ...interface{})  { l.logf(Warn, message, args...) }
func (l *LevelLogger) Errorf(message string, args ...interface{}) { l.logf(Error, message, args...) }

// DebugWriter adapts the logger to the Logger interface at debug level, for
// components that echo every host command they run.
func (l *LevelLogger) DebugWriter() Logger { return debugAdapter{l} }

type debugAdapter struct {
	l *LevelLogger
}

func (d debugAdapter) Printf(message string, args ...interface{}) {
	d.l.Debugf(message, args...)
}

// CapturedMessage is one line recorded by a CapturingLogger.
type CapturedMessage struct {
	Time    time.Time
	Message string
}

// CapturingLogger implements Logger by buffering messages in memory.
type CapturingLogger struct {
	output []CapturedMessage
	lock   sync.Mutex
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.lock.Lock()
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
	l.lock.Unlock()
}

func (l *CapturingLogger) Output() []CapturedMessage {
	l.lock.Lock()
	ret := append([]CapturedMessage(nil), l.output...)
	l.lock.Unlock()
	return ret
}

// Messages returns just the text of each captured line.
func (l *CapturingLogger) Messages() []string {
	var ret []string
	for _, m := range l.Output() {
		ret = append(ret, m.Message)
	}
	return ret
}
