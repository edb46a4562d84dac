package klogging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

type Level uint32

const (
	FatalLevel Level = iota + 1
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
	VerboseLevel
)

func (e Level) String() string {
	switch e {
	case FatalLevel:
		return "fatal"
	case ErrorLevel:
		return "error"
	case WarnLevel:
		return "warn"
	case InfoLevel:
		return "info"
	case DebugLevel:
		return "debug"
	case VerboseLevel:
		return "verbose"
	default:
		return fmt.Sprintf("%d", int(e))
	}
}

// ParseLogLevel accepts the usual spellings, case-insensitive.
func ParseLogLevel(str string) (Level, error) {
	switch strings.ToLower(str) {
	case "fatal":
		return FatalLevel, nil
	case "error", "err":
		return ErrorLevel, nil
	case "warning", "warn":
		return WarnLevel, nil
	case "info", "information":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	case "verbose", "trace":
		return VerboseLevel, nil
	}
	return 0, kerror.Create("UnknownLogLevel", "parse log level failed").With("str", str).WithErrorCode(kerror.EC_INVALID_PARAMETER)
}

func NeedLog(importance Level, threshold Level) bool {
	return importance <= threshold
}

type Logger interface {
	Log(entry *LogEntry, shouldLog bool)
	Level() Level
}

type loggerHolder struct {
	logger Logger
}

var currentLogger atomic.Value

func GetLogger() Logger {
	if h, ok := currentLogger.Load().(*loggerHolder); ok {
		return h.logger
	}
	l := NewBasicLogger(DebugLevel)
	currentLogger.Store(&loggerHolder{l})
	return l
}

func SetDefaultLogger(logger Logger) {
	currentLogger.Store(&loggerHolder{logger})
}

type Keypair struct {
	K string
	V interface{}
}

type LogEntry struct {
	Logger    Logger
	Level     Level
	ShouldLog bool
	EventType string
	Msg       string
	Details   []Keypair
	Ctx       context.Context
	Timestamp time.Time
}

func NewEntry(ctx context.Context, level Level) *LogEntry {
	logger := GetLogger()
	entry := &LogEntry{
		Logger:    logger,
		Level:     level,
		ShouldLog: NeedLog(level, logger.Level()),
		Ctx:       ctx,
		Timestamp: time.Now(),
	}
	if entry.ShouldLog {
		GetCurrentCtxInfo(ctx).Visit(func(k, v string) {
			entry.Details = append(entry.Details, Keypair{k, v})
		})
	}
	return entry
}

func (entry *LogEntry) With(k string, v interface{}) *LogEntry {
	if entry.ShouldLog {
		entry.Details = append(entry.Details, Keypair{k, v})
	}
	return entry
}

// WithError flattens a Kerror into type/msg/details. Plain errors go in as "error".
func (entry *LogEntry) WithError(err error) *LogEntry {
	if !entry.ShouldLog || err == nil {
		return entry
	}
	if ke, ok := err.(*kerror.Kerror); ok {
		for _, item := range ke.Details {
			entry.Details = append(entry.Details, Keypair{item.K, item.V})
		}
		entry.Details = append(entry.Details, Keypair{"errorType", ke.Type}, Keypair{"errorMsg", ke.Msg})
		if ke.CausedBy != nil {
			entry.Details = append(entry.Details, Keypair{"causedBy", ke.CausedByString()})
		}
		if ke.Stack != "" && NeedLog(DebugLevel, entry.Logger.Level()) {
			entry.Details = append(entry.Details, Keypair{"stack", ke.Stack})
		}
		return entry
	}
	entry.Details = append(entry.Details, Keypair{"error", err.Error()})
	return entry
}

func (entry *LogEntry) WithPanic(r interface{}) *LogEntry {
	if err, ok := r.(error); ok {
		entry.WithError(err)
	} else {
		entry.With("panic", r)
	}
	return entry.With("stack", kerror.GetCallStack(1))
}

func (entry *LogEntry) Log(eventType, msg string) {
	entry.EventType = eventType
	entry.Msg = msg
	entry.Logger.Log(entry, entry.ShouldLog)
	if entry.Level == FatalLevel {
		OsExit(1)
	}
}

func (entry *LogEntry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "level=%v, event=%s, msg=%s", entry.Level, entry.EventType, entry.Msg)
	for _, item := range entry.Details {
		fmt.Fprintf(&b, ", %s=%v", item.K, item.V)
	}
	return b.String()
}

func Fatal(ctx context.Context) *LogEntry {
	return NewEntry(ctx, FatalLevel)
}
func Error(ctx context.Context) *LogEntry {
	return NewEntry(ctx, ErrorLevel)
}
func Warning(ctx context.Context) *LogEntry {
	return NewEntry(ctx, WarnLevel)
}
func Info(ctx context.Context) *LogEntry {
	return NewEntry(ctx, InfoLevel)
}
func Debug(ctx context.Context) *LogEntry {
	return NewEntry(ctx, DebugLevel)
}
func Verbose(ctx context.Context) *LogEntry {
	return NewEntry(ctx, VerboseLevel)
}

/********************************* BasicLogger ************************************/

// BasicLogger prints to stdout and remembers the last line, used by tests.
type BasicLogger struct {
	LogLevel Level

	mu   sync.Mutex
	last string
}

func NewBasicLogger(level Level) *BasicLogger {
	return &BasicLogger{LogLevel: level}
}

func (bl *BasicLogger) Log(entry *LogEntry, shouldLog bool) {
	if !shouldLog {
		return
	}
	line := entry.String()
	fmt.Println(line)
	bl.mu.Lock()
	bl.last = line
	bl.mu.Unlock()
}

func (bl *BasicLogger) Level() Level {
	return bl.LogLevel
}

func (bl *BasicLogger) LastMessage() string {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	return bl.last
}

/********************************* NullLogger ************************************/

type NullLogger struct{}

func NewNullLogger() Logger {
	return &NullLogger{}
}

func (nl *NullLogger) Log(entry *LogEntry, shouldLog bool) {}

func (nl *NullLogger) Level() Level {
	return VerboseLevel
}
