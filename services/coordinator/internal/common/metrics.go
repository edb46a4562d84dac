package common

import (
	"context"
	"sort"
	"strings"

	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kmetrics"
)

// MetricsSnapshot totals every int64 series in the kmetrics registry by metric name.
// Metrics with no series yet are left out.
func MetricsSnapshot() map[string]int64 {
	snapshot := map[string]int64{}
	for _, m := range kmetrics.GetKmetricsRegistry().Read() {
		if len(m.TimeSeries) == 0 {
			continue
		}
		var total int64
		for _, ts := range m.TimeSeries {
			for _, p := range ts.Points {
				if v, ok := p.Value.(int64); ok {
					total += v
				}
			}
		}
		snapshot[m.Descriptor.Name] = total
	}
	return snapshot
}

// LogMetricsSnapshot logs the registry once. The coordinator exits after a single run, so this
// is where its metrics become visible.
func LogMetricsSnapshot(ctx context.Context) map[string]int64 {
	snapshot := MetricsSnapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	entry := klogging.Info(ctx).With("count", len(names))
	for _, name := range names {
		if strings.HasPrefix(name, "coordinator_") || strings.HasPrefix(name, "op_") {
			entry = entry.With(name, snapshot[name])
		}
	}
	entry.Log("MetricsSnapshot", "coordinator metrics at exit")
	return snapshot
}
