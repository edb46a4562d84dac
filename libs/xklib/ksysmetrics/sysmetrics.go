package ksysmetrics

import (
	"context"
	"math"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"go.opencensus.io/metric"
	"go.opencensus.io/metric/metricdata"
	"golang.org/x/sys/unix"
)

// Snapshot is one collection pass. CPU in seconds, memory in bytes.
type Snapshot struct {
	UserCPU    float64
	SystemCPU  float64
	HeapAlloc  int64
	SysMem     int64
	Goroutines int64
	OpenFDs    int64
	GCPauseNs  int64
}

type gaugeValues struct {
	userCPU, systemCPU                              atomic.Uint64 // math.Float64bits
	heapAlloc, sysMem, goroutines, openFDs, gcPause atomic.Int64
}

var (
	registry  = metric.NewRegistry()
	values    gaugeValues
	setupOnce sync.Once
)

func GetRegistry() *metric.Registry {
	setupOnce.Do(registerGauges)
	return registry
}

func registerGauges() {
	f64 := func(name, desc, unit string, v *atomic.Uint64) {
		g, err := registry.AddFloat64DerivedGauge(name, metric.WithDescription(desc), metric.WithUnit(metricdata.Unit(unit)))
		if err == nil {
			g.UpsertEntry(func() float64 { return math.Float64frombits(v.Load()) })
		}
	}
	i64 := func(name, desc, unit string, v *atomic.Int64) {
		g, err := registry.AddInt64DerivedGauge(name, metric.WithDescription(desc), metric.WithUnit(metricdata.Unit(unit)))
		if err == nil {
			g.UpsertEntry(v.Load)
		}
	}
	f64("process_user_cpu_seconds", "user CPU time", "s", &values.userCPU)
	f64("process_system_cpu_seconds", "system CPU time", "s", &values.systemCPU)
	i64("process_heap_bytes", "heap bytes allocated", "By", &values.heapAlloc)
	i64("process_sys_memory_bytes", "memory obtained from the OS", "By", &values.sysMem)
	i64("process_goroutines", "number of goroutines", "1", &values.goroutines)
	i64("process_open_fds", "open file descriptors", "1", &values.openFDs)
	i64("process_gc_pause_total_ns", "cumulative GC pause", "ns", &values.gcPause)
}

// Collect reads the current process stats. An rusage or /proc failure leaves those fields zero.
func Collect(ctx context.Context) Snapshot {
	var snap Snapshot
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err == nil {
		snap.UserCPU = time.Duration(ru.Utime.Nano()).Seconds()
		snap.SystemCPU = time.Duration(ru.Stime.Nano()).Seconds()
	} else {
		klogging.Debug(ctx).WithError(err).Log("RusageFailed", "failed to read rusage")
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	snap.HeapAlloc = int64(mem.HeapAlloc)
	snap.SysMem = int64(mem.Sys)
	snap.GCPauseNs = int64(mem.PauseTotalNs)
	snap.Goroutines = int64(runtime.NumGoroutine())
	if fds, err := os.ReadDir("/proc/self/fd"); err == nil {
		snap.OpenFDs = int64(len(fds))
	}
	return snap
}

func publish(snap Snapshot) {
	values.userCPU.Store(math.Float64bits(snap.UserCPU))
	values.systemCPU.Store(math.Float64bits(snap.SystemCPU))
	values.heapAlloc.Store(snap.HeapAlloc)
	values.sysMem.Store(snap.SysMem)
	values.goroutines.Store(snap.Goroutines)
	values.openFDs.Store(snap.OpenFDs)
	values.gcPause.Store(snap.GCPauseNs)
}

// StartSysMetricsCollector refreshes the gauges every interval until ctx is done.
func StartSysMetricsCollector(ctx context.Context, interval time.Duration) {
	GetRegistry()
	publish(Collect(ctx))
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				publish(Collect(ctx))
			}
		}
	}()
}
