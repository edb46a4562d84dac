package core

import (
	"context"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kmetrics"
)

var (
	RunMetric      = kmetrics.CreateKmetric(context.Background(), "coordinator_run_ms", "coordinator runs by policy and outcome", []string{"policy", "status"})
	PoolSizeMetric = kmetrics.CreateKmetric(context.Background(), "coordinator_pool_size", "workers assembled per run", []string{})
)
