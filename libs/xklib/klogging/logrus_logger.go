package klogging

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

// TimestampFormat keeps ms resolution and the zone, and sorts lexically.
const TimestampFormat = "2006-01-02T15:04:05.999Z07:00"

type LogFormat uint32

const (
	TextFormat LogFormat = iota + 1
	JsonFormat
	SimpleFormat
)

func (e LogFormat) String() string {
	switch e {
	case TextFormat:
		return "text"
	case JsonFormat:
		return "json"
	case SimpleFormat:
		return "simple"
	default:
		return fmt.Sprintf("%d", int(e))
	}
}

func ParseLogFormat(str string) (LogFormat, error) {
	switch strings.ToLower(str) {
	case "text":
		return TextFormat, nil
	case "json":
		return JsonFormat, nil
	case "simple":
		return SimpleFormat, nil
	}
	return 0, kerror.Create("UnknownLogFormat", "parse log format failed").With("str", str).WithErrorCode(kerror.EC_INVALID_PARAMETER)
}

// LoggerMetricsReporter receives one call per entry at debug level or above, logged or not.
type LoggerMetricsReporter interface {
	ReportLogEvent(ctx context.Context, logLevel, eventType string, isLogged bool)
}

// LogrusLogger implements Logger. Threshold filtering happens here, the logrus logger itself accepts everything.
type LogrusLogger struct {
	ctx             context.Context
	RusLogger       *logrus.Logger
	logLevel        Level
	logFormat       LogFormat
	metricsReporter LoggerMetricsReporter
}

func NewLogrusLogger(ctx context.Context) *LogrusLogger {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logrus.New()
	log.SetLevel(logrus.TraceLevel)
	logger := &LogrusLogger{
		ctx:       ctx,
		RusLogger: log,
		logLevel:  InfoLevel,
		logFormat: TextFormat,
	}
	log.SetFormatter(newFormatter(TextFormat))
	return logger
}

// WithOutput redirects the underlying writer. cmd binaries keep stdout for results, so logs go to stderr.
func (logger *LogrusLogger) WithOutput(w io.Writer) *LogrusLogger {
	logger.RusLogger.SetOutput(w)
	return logger
}

func (logger *LogrusLogger) WithMetricsReporter(reporter LoggerMetricsReporter) *LogrusLogger {
	logger.metricsReporter = reporter
	return logger
}

func newFormatter(format LogFormat) logrus.Formatter {
	switch format {
	case JsonFormat:
		return &logrus.JSONFormatter{TimestampFormat: TimestampFormat}
	case SimpleFormat:
		return NewSimpleFormatter()
	default:
		return &logrus.TextFormatter{
			DisableColors:   true,
			TimestampFormat: TimestampFormat,
			FullTimestamp:   true,
		}
	}
}

// SetConfig applies level (fatal..verbose) and format (text|json|simple). An unparsable value leaves the old setting and logs a warning.
func (logger *LogrusLogger) SetConfig(ctx context.Context, levelStr string, formatStr string) *LogrusLogger {
	if newLevel, err := ParseLogLevel(levelStr); err != nil {
		Warning(ctx).WithError(err).Log("UpdateLogConfigFailed", "keeping current log level")
	} else if newLevel != logger.logLevel {
		Info(ctx).With("oldLogLevel", logger.logLevel).With("newLogLevel", newLevel).Log("UpdateLogLevel", "log level updated")
		logger.logLevel = newLevel
	}
	if newFormat, err := ParseLogFormat(formatStr); err != nil {
		Warning(ctx).WithError(err).Log("UpdateLogConfigFailed", "keeping current log format")
	} else if newFormat != logger.logFormat {
		logger.RusLogger.SetFormatter(newFormatter(newFormat))
		logger.logFormat = newFormat
	}
	return logger
}

// Log implements Logger. Metrics are reported even for entries below the threshold.
func (logger *LogrusLogger) Log(entry *LogEntry, shouldLog bool) {
	if logger.metricsReporter != nil && NeedLog(entry.Level, DebugLevel) {
		logger.metricsReporter.ReportLogEvent(logger.ctx, entry.Level.String(), entry.EventType, shouldLog)
	}
	if !shouldLog {
		return
	}
	fields := make(logrus.Fields, len(entry.Details)+1)
	for _, item := range entry.Details {
		fields[item.K] = item.V
	}
	fields["event"] = entry.EventType
	ent := logger.RusLogger.WithFields(fields)
	ent.Time = entry.Timestamp
	ent.Log(logrus.Level(entry.Level), entry.Msg)
}

func (logger *LogrusLogger) Level() Level {
	return logger.logLevel
}

func (logger *LogrusLogger) Format() LogFormat {
	return logger.logFormat
}
