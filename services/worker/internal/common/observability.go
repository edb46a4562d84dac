package common

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"
	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kmetrics"
	"github.com/xinkaiwang/integralfarm/libs/xklib/ksysmetrics"
	"go.opencensus.io/metric"
	"go.opencensus.io/metric/metricproducer"
)

// SetupLogging installs a logrus-backed default logger writing to stderr.
func SetupLogging(ctx context.Context, defaultFormat string) *klogging.LogrusLogger {
	logLevel := kcommon.GetEnvString("LOG_LEVEL", "info")
	logFormat := kcommon.GetEnvString("LOG_FORMAT", defaultFormat)
	logger := klogging.NewLogrusLogger(ctx).
		WithOutput(os.Stderr).
		WithMetricsReporter(kmetrics.NewLogEventReporter(ctx, "worker_log_events"))
	klogging.SetDefaultLogger(logger)
	logger.SetConfig(ctx, logLevel, logFormat)
	return logger
}

// StartMetricsServer serves /metrics on port until ctx is done. Extra registries are exported next to kmetrics and ksysmetrics.
func StartMetricsServer(ctx context.Context, port int, extra ...*metric.Registry) error {
	pe, err := prometheus.NewExporter(prometheus.Options{Namespace: "integralfarm"})
	if err != nil {
		return err
	}
	manager := metricproducer.GlobalManager()
	manager.AddProducer(kmetrics.GetKmetricsRegistry())
	manager.AddProducer(ksysmetrics.GetRegistry())
	for _, r := range extra {
		manager.AddProducer(r)
	}
	ksysmetrics.StartSysMetricsCollector(ctx, 15*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/metrics", pe)
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	go func() {
		klogging.Info(ctx).With("addr", server.Addr).Log("MetricsServerStarting", "metrics server starting")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			klogging.Error(ctx).WithError(err).Log("MetricsServerError", "metrics server stopped")
		}
	}()
	return nil
}
