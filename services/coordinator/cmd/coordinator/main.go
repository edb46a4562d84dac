package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/biz"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/common"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	common.SetupLogging(ctx, "simple")

	cfg, err := config.LoadCoordinatorConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, config.Usage)
		klogging.Fatal(ctx).WithError(err).Log("InvalidConfig", "bad command line")
		return
	}
	klogging.Info(ctx).With("version", common.GetVersion()).With("serverPort", cfg.ServerPort).Log("CoordinatorStarting", "")

	report, err := biz.NewApp(ctx, cfg).RunOnce(ctx)
	if err != nil {
		klogging.Fatal(ctx).WithError(err).Log("RunFailed", "run aborted")
		return
	}
	fmt.Printf("%.10f\n", report.Total)
}
