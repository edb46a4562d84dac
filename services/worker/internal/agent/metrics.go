package agent

import (
	"context"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kmetrics"
)

var (
	CycleMetric     = kmetrics.CreateKmetric(context.Background(), "worker_cycle", "work cycles by the stage they ended in", []string{"stage", "status"}).CountOnly()
	ComputeMsMetric = kmetrics.CreateKmetric(context.Background(), "worker_compute_ms", "wall time spent computing requests", []string{"workload"})
)
