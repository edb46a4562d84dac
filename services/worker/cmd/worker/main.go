package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kmetrics"
	"github.com/xinkaiwang/integralfarm/services/worker/internal/agent"
	"github.com/xinkaiwang/integralfarm/services/worker/internal/common"
	"github.com/xinkaiwang/integralfarm/services/worker/internal/config"
	"go.opencensus.io/metric"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	common.SetupLogging(ctx, "simple")

	cfg, err := config.LoadAgentConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, config.Usage)
		klogging.Fatal(ctx).WithError(err).Log("InvalidConfig", "bad command line")
		return
	}
	ctx = klogging.EmbedTraceId(ctx, common.GetSessionId())
	klogging.Info(ctx).
		With("version", common.GetVersion()).
		With("listenPort", cfg.ListenPort).
		With("serverPort", cfg.ServerPort).
		With("parallelism", cfg.Parallelism).
		With("workload", cfg.Workload).
		Log("WorkerStarting", "starting worker")

	a, err := agent.NewAgent(ctx, cfg)
	if err != nil {
		klogging.Fatal(ctx).WithError(err).Log("WorkerStartFailed", "cannot start worker")
		return
	}

	if cfg.MetricsPort > 0 {
		benchRegistry := metric.NewRegistry()
		if err := kmetrics.AddFloat64DerivedGauge(benchRegistry, "worker_benchmark_elapsed_ms", "startup benchmark wall time", func() float64 { return a.Benchmark().ElapsedMs }); err != nil {
			klogging.Warning(ctx).WithError(err).Log("GaugeSetupFailed", "benchmark gauge not exported")
		}
		if err := common.StartMetricsServer(ctx, cfg.MetricsPort, benchRegistry); err != nil {
			klogging.Warning(ctx).WithError(err).Log("MetricsServerFailed", "metrics disabled")
		}
	}

	if err := a.Run(ctx); err != nil {
		klogging.Fatal(ctx).WithError(err).Log("WorkerStopped", "discovery socket lost")
	}
	klogging.Info(ctx).Log("WorkerShutdown", "worker stopped")
}
