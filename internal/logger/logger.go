package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	mu          sync.Mutex
	globalLevel           = LogLevelInfo
	out         io.Writer = os.Stdout
)

func rank(l LogLevel) int {
	switch l {
	case LogLevelDebug:
		return 0
	case LogLevelWarn:
		return 2
	case LogLevelError:
		return 3
	default:
		return 1
	}
}

// ParseLevel maps a config string onto a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// SetGlobalLevel changes the level used by loggers created afterwards.
func SetGlobalLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	globalLevel = level
}

// SetOutput redirects all log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

type Log struct {
	level  LogLevel
	err    error
	fields map[string]any
}

func New() *Log {
	mu.Lock()
	defer mu.Unlock()
	return &Log{
		level: globalLevel,
	}
}

func (l *Log) SetLevel(level LogLevel) {
	l.level = level
}

func (l *Log) WithError(err error) *Log {
	return &Log{level: l.level, err: err, fields: l.fields}
}

// WithField returns a copy of the logger that appends key=value to every line.
func (l *Log) WithField(key string, value any) *Log {
	fields := make(map[string]any, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Log{level: l.level, err: l.err, fields: fields}
}

func (l *Log) timestamp() string {
	return time.Now().Format("15:04:05")
}

func (l *Log) suffix() string {
	if len(l.fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	return b.String()
}

func (l *Log) write(level LogLevel, color, icon, msg string) {
	if rank(level) < rank(l.level) {
		return
	}

	line := msg + l.suffix()
	if l.err != nil {
		line = fmt.Sprintf("%s: %v", line, l.err)
	}

	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "%s[%s]%s %s %s%s\n", color, l.timestamp(), ColorReset, icon, line, ColorReset)
}

func (l *Log) Debug(msg string) {
	l.write(LogLevelDebug, ColorCyan, "🔍", msg)
}

func (l *Log) Info(msg string) {
	l.write(LogLevelInfo, ColorBlue, "ℹ️ ", msg)
}

func (l *Log) Warn(msg string) {
	l.write(LogLevelWarn, ColorYellow, "⚠️ ", msg)
}

func (l *Log) Error(msg string) {
	l.write(LogLevelError, ColorRed, "❌", msg)
}
