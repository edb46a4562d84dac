package kmetrics

import (
	"context"
	"strconv"
)

// LogEventReporter counts log entries by level, event and whether they passed the threshold.
// It satisfies klogging.LoggerMetricsReporter.
type LogEventReporter struct {
	metric *Kmetric
}

func NewLogEventReporter(ctx context.Context, metricName string) *LogEventReporter {
	return &LogEventReporter{
		metric: CreateKmetric(ctx, metricName, "log entries by level and event", []string{"level", "event", "logged"}).CountOnly(),
	}
}

func (r *LogEventReporter) ReportLogEvent(ctx context.Context, logLevel, eventType string, isLogged bool) {
	r.metric.GetTimeSequence(ctx, logLevel, eventType, strconv.FormatBool(isLogged)).Add(1)
}
