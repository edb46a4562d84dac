package agent

import (
	"context"
	"net"

	"github.com/xinkaiwang/integralfarm/libs/compute"
	"github.com/xinkaiwang/integralfarm/libs/wire"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"github.com/xinkaiwang/integralfarm/libs/xklib/krunloop"
	"github.com/xinkaiwang/integralfarm/services/worker/internal/config"
)

// Agent is a long-lived worker: it benchmarks itself once, then serves one work
// cycle per discovery probe, strictly one at a time.
type Agent struct {
	cfg       *config.AgentConfig
	workload  compute.Workload
	benchmark wire.Benchmark
	listener  *wire.ProbeListener
	runloop   *krunloop.RunLoop[*Agent]
	observer  func(*CycleResult)
}

// IsResource marks Agent as the run loop's critical resource.
func (a *Agent) IsResource() {}

type AgentOption func(*Agent)

// WithCycleObserver is called on the run loop after every cycle.
func WithCycleObserver(fn func(*CycleResult)) AgentOption {
	return func(a *Agent) {
		a.observer = fn
	}
}

// NewAgent runs the startup benchmark and binds the discovery port. Both failures are terminal.
func NewAgent(ctx context.Context, cfg *config.AgentConfig, options ...AgentOption) (*Agent, error) {
	workload, err := compute.LookupWorkload(cfg.Workload)
	if err != nil {
		return nil, err
	}
	elapsedMs, err := compute.RunBenchmark(ctx, workload, cfg.Parallelism, cfg.BenchmarkDelta)
	if err != nil {
		return nil, err
	}
	bench := wire.Benchmark{ElapsedMs: elapsedMs, Delta: cfg.BenchmarkDelta}
	klogging.Info(ctx).
		With("elapsedMs", bench.ElapsedMs).
		With("delta", bench.Delta).
		With("parallelism", cfg.Parallelism).
		Log("BenchmarkComplete", "startup benchmark done")

	listener, err := wire.ListenProbes(cfg.ListenPort)
	if err != nil {
		return nil, err
	}
	a := &Agent{
		cfg:       cfg,
		workload:  workload,
		benchmark: bench,
		listener:  listener,
	}
	for _, option := range options {
		option(a)
	}
	a.runloop = krunloop.NewRunLoop(ctx, a, "worker")
	return a, nil
}

func (a *Agent) Benchmark() wire.Benchmark {
	return a.benchmark
}

// ProbePort is the bound discovery port, useful when configured as 0.
func (a *Agent) ProbePort() int {
	return a.listener.Port()
}

// Run serves probes until ctx is done. A read error on the discovery socket is
// logged and the agent keeps listening; only a closed socket ends Run early.
func (a *Agent) Run(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	go a.runloop.Run(loopCtx)
	defer func() {
		cancel()
		<-a.runloop.Done()
	}()
	defer a.listener.Close()

	klogging.Info(ctx).With("listenPort", a.ProbePort()).With("serverPort", a.cfg.ServerPort).Log("AgentListening", "waiting for discovery probes")
	for {
		from, err := a.listener.Wait(ctx)
		if ctx.Err() != nil {
			klogging.Info(ctx).Log("AgentStopping", "context done")
			return nil
		}
		if err != nil {
			if kerror.IsType(err, "ListenerClosed") {
				return err
			}
			klogging.Warning(ctx).WithError(err).Log("ProbeReadFailed", "ignoring discovery read error")
			continue
		}
		klogging.Debug(ctx).With("from", from.String()).With("queued", a.runloop.QueueSize()).Log("ProbeReceived", "")
		a.runloop.PostEvent(&ProbeEvent{From: from})
	}
}

// ProbeEvent implements krunloop.IEvent[*Agent].
type ProbeEvent struct {
	From net.IP
}

func (e *ProbeEvent) GetName() string {
	return "ProbeEvent"
}

func (e *ProbeEvent) Process(ctx context.Context, a *Agent) {
	result := a.RunCycle(ctx, e.From)
	if a.observer != nil {
		a.observer(result)
	}
}
