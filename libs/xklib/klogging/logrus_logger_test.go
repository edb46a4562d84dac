package klogging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingReporter struct {
	logged, dropped int
}

func (r *countingReporter) ReportLogEvent(ctx context.Context, logLevel, eventType string, isLogged bool) {
	if isLogged {
		r.logged++
	} else {
		r.dropped++
	}
}

func TestLogrusLoggerSimpleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusLogger(context.Background()).WithOutput(&buf)
	SetDefaultLogger(logger)
	logger.SetConfig(context.Background(), "debug", "simple")
	assert.Equal(t, DebugLevel, logger.Level())
	assert.Equal(t, SimpleFormat, logger.Format())

	buf.Reset()
	Info(context.Background()).With("total", 0.5).With("peer", "a b").Log("RunComplete", "done")
	assert.Regexp(t, ` INFO event=RunComplete msg=done peer='a b' total=0.5\n$`, buf.String())
}

func TestLogrusLoggerBadConfigKeepsOld(t *testing.T) {
	logger := NewLogrusLogger(nil).WithOutput(&bytes.Buffer{})
	SetDefaultLogger(logger)
	logger.SetConfig(context.Background(), "nope", "nope")
	assert.Equal(t, InfoLevel, logger.Level())
	assert.Equal(t, TextFormat, logger.Format())
}

func TestLogrusLoggerReportsMetrics(t *testing.T) {
	reporter := &countingReporter{}
	logger := NewLogrusLogger(nil).WithOutput(&bytes.Buffer{}).WithMetricsReporter(reporter)
	SetDefaultLogger(logger)
	Info(context.Background()).Log("A", "")
	Debug(context.Background()).Log("B", "")
	Verbose(context.Background()).Log("C", "")
	assert.Equal(t, 1, reporter.logged)
	assert.Equal(t, 1, reporter.dropped)
}
