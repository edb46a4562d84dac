package common

import (
	"context"
	"os"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"
	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kmetrics"
)

// SetupLogging installs a logrus-backed default logger on stderr; stdout carries only the result.
func SetupLogging(ctx context.Context, defaultFormat string) *klogging.LogrusLogger {
	logger := klogging.NewLogrusLogger(ctx).
		WithOutput(os.Stderr).
		WithMetricsReporter(kmetrics.NewLogEventReporter(ctx, "coordinator_log_events"))
	klogging.SetDefaultLogger(logger)
	logger.SetConfig(ctx, kcommon.GetEnvString("LOG_LEVEL", "info"), kcommon.GetEnvString("LOG_FORMAT", defaultFormat))
	return logger
}
