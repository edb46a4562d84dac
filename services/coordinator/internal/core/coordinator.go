package core

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xinkaiwang/integralfarm/libs/wire"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kmetrics"
	"github.com/xinkaiwang/integralfarm/services/coordinator/cjson"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/config"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/partition"
	"golang.org/x/sync/errgroup"
)

// Coordinator runs one integral over a freshly assembled worker pool. It is not reusable.
type Coordinator struct {
	cfg      *config.CoordinatorConfig
	runId    string
	listener *net.TCPListener
}

func NewCoordinator(cfg *config.CoordinatorConfig) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		runId: uuid.NewString(),
	}
}

func (c *Coordinator) RunId() string {
	return c.runId
}

// Listen binds the work port. Run calls it when it has not been called yet; calling it first
// lets a caller learn an ephemeral port before the probe goes out.
func (c *Coordinator) Listen(ctx context.Context) error {
	if c.listener != nil {
		return nil
	}
	listener, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4zero, Port: c.cfg.ServerPort})
	if err != nil {
		return kerror.Wrap(err, "ListenFailure", "cannot bind server port", false).
			With("port", c.cfg.ServerPort).
			WithErrorCode(kerror.EC_NETWORK_ERR)
	}
	c.listener = listener
	klogging.Info(ctx).With("port", c.Port()).With("policy", c.cfg.Policy()).Log("CoordinatorListening", "listening for workers")
	return nil
}

// Port is the bound work port, 0 before Listen.
func (c *Coordinator) Port() int {
	if c.listener == nil {
		return 0
	}
	return c.listener.Addr().(*net.TCPAddr).Port
}

func (c *Coordinator) closeListener() {
	if c.listener != nil {
		c.listener.Close()
	}
}

// Run executes listen, probe, pool assembly, benchmark collection, partitioning, dispatch and
// gather. Any failure aborts the whole run with every connection closed.
func (c *Coordinator) Run(ctx context.Context) (report *cjson.RunReportJson, err error) {
	ctx = klogging.EmbedTraceId(ctx, c.runId)
	sw := kcommon.StartStopwatch()
	defer func() {
		status := "OK"
		if err != nil {
			status = kerror.TypeOf(err)
		}
		RunMetric.GetTimeSequence(ctx, string(c.cfg.Policy()), status).Add(int64(sw.ElapsedMs()))
	}()
	defer c.closeListener()

	if err := c.Listen(ctx); err != nil {
		return nil, err
	}
	if err := wire.SendProbe(ctx, c.cfg.BroadcastAddr, c.cfg.BroadcastPort); err != nil {
		return nil, err
	}
	klogging.Info(ctx).With("addr", c.cfg.BroadcastAddr).With("port", c.cfg.BroadcastPort).Log("ProbeSent", "waiting for workers")

	var pool *WorkerPool
	err = kmetrics.InstrumentSummaryRunError(ctx, "coordinator.assemble", func(ctx context.Context) error {
		var err error
		pool, err = AssemblePool(ctx, c.listener, c.cfg.MaxWorkers, c.cfg.WaitWindow)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer pool.CloseAll()
	stop := context.AfterFunc(ctx, pool.CloseAll)
	defer stop()
	PoolSizeMetric.GetTimeSequence(ctx).Add(int64(pool.Size()))

	if err := c.step(ctx, "coordinator.benchmark", pool, c.collectBenchmark); err != nil {
		return nil, err
	}

	parts, err := partition.Split(c.cfg.Policy(), c.cfg.Interval, pool.Benchmarks())
	if err != nil {
		return nil, kerror.Wrap(err, "BenchmarkCollectionFailed", "cannot partition with collected benchmarks", false)
	}
	for i, e := range pool.Entries() {
		e.Assigned = parts[i]
	}

	if err := c.step(ctx, "coordinator.dispatch", pool, c.dispatch); err != nil {
		return nil, err
	}
	if err := c.step(ctx, "coordinator.gather", pool, c.gather); err != nil {
		return nil, err
	}
	c.closeListener()

	report = c.buildReport(pool)
	report.ElapsedMs = sw.ElapsedMs()
	klogging.Info(ctx).
		With("total", report.Total).
		With("workers", pool.Size()).
		With("elapsedMs", report.ElapsedMs).
		Log("RunComplete", "all partial results gathered")
	return report, nil
}

type entryFunc func(ctx context.Context, e *WorkerEntry) error

// step applies fn to every entry, concurrently or in pool order. Either way the first failure
// closes the whole pool and is the error returned.
func (c *Coordinator) step(ctx context.Context, method string, pool *WorkerPool, fn entryFunc) error {
	return kmetrics.InstrumentSummaryRunError(ctx, method, func(ctx context.Context) error {
		if !c.cfg.Concurrent {
			for _, e := range pool.Entries() {
				if err := fn(ctx, e); err != nil {
					pool.CloseAll()
					return err
				}
			}
			return nil
		}
		// the failure that closes the pool wins over the ones the close causes
		var once sync.Once
		var first error
		var g errgroup.Group
		g.SetLimit(pool.Size())
		for _, e := range pool.Entries() {
			e := e
			g.Go(func() error {
				if err := fn(ctx, e); err != nil {
					once.Do(func() {
						first = err
						pool.CloseAll()
					})
					return err
				}
				return nil
			})
		}
		g.Wait()
		return first
	})
}

func (c *Coordinator) armDeadline(e *WorkerEntry) {
	if c.cfg.IOTimeout > 0 {
		e.Conn.SetDeadline(time.Now().Add(c.cfg.IOTimeout))
	}
}

func (c *Coordinator) collectBenchmark(ctx context.Context, e *WorkerEntry) error {
	c.armDeadline(e)
	b, err := wire.ReadBenchmark(e.Conn)
	if err == nil {
		err = b.Validate()
	}
	if err != nil {
		return kerror.Wrap(err, "BenchmarkCollectionFailed", "cannot collect benchmark", false).
			With("index", e.Index).
			With("address", e.Address)
	}
	e.Benchmark = b
	klogging.Debug(ctx).With("index", e.Index).With("elapsedMs", b.ElapsedMs).With("delta", b.Delta).Log("BenchmarkReceived", "")
	return nil
}

func (c *Coordinator) dispatch(ctx context.Context, e *WorkerEntry) error {
	c.armDeadline(e)
	req := wire.Request{StartPoint: e.Assigned.Start, EndPoint: e.Assigned.End, Delta: c.cfg.Delta}
	if err := wire.WriteRequest(e.Conn, req); err != nil {
		return kerror.Wrap(err, "DispatchFailed", "cannot send request", false).
			With("index", e.Index).
			With("address", e.Address)
	}
	klogging.Debug(ctx).With("index", e.Index).With("start", req.StartPoint).With("end", req.EndPoint).Log("RequestSent", "")
	return nil
}

func (c *Coordinator) gather(ctx context.Context, e *WorkerEntry) error {
	c.armDeadline(e)
	resp, err := wire.ReadResponse(e.Conn)
	if err != nil {
		return kerror.Wrap(err, "GatherFailed", "cannot read response", false).
			With("index", e.Index).
			With("address", e.Address)
	}
	e.Response = resp
	e.Conn.Close()
	klogging.Debug(ctx).With("index", e.Index).With("result", resp.Result).With("elapsedMs", resp.ElapsedMs).Log("ResponseReceived", "")
	return nil
}

// buildReport sums partial results in pool order.
func (c *Coordinator) buildReport(pool *WorkerPool) *cjson.RunReportJson {
	report := cjson.NewRunReportJson(c.runId, c.cfg.Interval.Start, c.cfg.Interval.End, c.cfg.Delta, string(c.cfg.Policy()))
	for _, e := range pool.Entries() {
		report.Total += e.Response.Result
		report.Workers = append(report.Workers, &cjson.WorkerReportJson{
			Index:            e.Index,
			Address:          e.Address,
			Benchmark:        &cjson.BenchmarkJson{ElapsedMs: e.Benchmark.ElapsedMs, Delta: e.Benchmark.Delta},
			PerformanceIndex: partition.PerformanceIndex(e.Benchmark),
			StartPoint:       e.Assigned.Start,
			EndPoint:         e.Assigned.End,
			Result:           e.Response.Result,
			ElapsedMs:        e.Response.ElapsedMs,
		})
	}
	report.SetFinished()
	return report
}
