package core

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/integralfarm/libs/compute"
	"github.com/xinkaiwang/integralfarm/libs/wire"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/config"
)

type behavior int

const (
	serveNormally behavior = iota
	shortBenchmark
	dropBeforeResponse
	stayQuiet
)

type fakeWorker struct {
	benchmark wire.Benchmark
	behavior  behavior
}

// fakeFarm answers one probe by connecting every fake worker back to the coordinator.
type fakeFarm struct {
	probes *wire.ProbeListener
	done   chan struct{}

	mu       sync.Mutex
	requests []wire.Request
}

func startFarm(t *testing.T, coordinatorPort int, workers ...fakeWorker) *fakeFarm {
	probes, err := wire.ListenProbes(0)
	require.Nil(t, err)
	farm := &fakeFarm{probes: probes, done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		close(farm.done)
		probes.Close()
	})
	go func() {
		ip, err := probes.Wait(ctx)
		if err != nil {
			return
		}
		addr := net.JoinHostPort(ip.String(), strconv.Itoa(coordinatorPort))
		for _, w := range workers {
			go farm.serve(addr, w)
		}
	}()
	return farm
}

func (farm *fakeFarm) serve(addr string, w fakeWorker) {
	conn, err := net.Dial("tcp4", addr)
	if err != nil {
		return
	}
	defer conn.Close()
	switch w.behavior {
	case shortBenchmark:
		conn.Write(w.benchmark.Marshal()[:8])
		return
	case stayQuiet:
		<-farm.done
		return
	}
	if err := wire.WriteBenchmark(conn, w.benchmark); err != nil {
		return
	}
	req, err := wire.ReadRequest(conn)
	if err != nil {
		return
	}
	farm.mu.Lock()
	farm.requests = append(farm.requests, req)
	farm.mu.Unlock()
	if w.behavior == dropBeforeResponse {
		return
	}
	result, err := compute.Integrate(context.Background(), compute.Identity, req.StartPoint, req.EndPoint, 1, req.Delta)
	if err != nil {
		return
	}
	wire.WriteResponse(conn, wire.Response{ElapsedMs: 1, Result: result})
}

func (farm *fakeFarm) Requests() []wire.Request {
	farm.mu.Lock()
	defer farm.mu.Unlock()
	return append([]wire.Request{}, farm.requests...)
}

var equalBench = wire.Benchmark{ElapsedMs: 1, Delta: 1e-4}

func runWithFarm(t *testing.T, workers []fakeWorker, options ...config.CoordinatorConfigOption) (*Coordinator, *fakeFarm) {
	c := NewCoordinator(config.CreateTestCoordinatorConfig(0, options...))
	require.Nil(t, c.Listen(context.Background()))
	t.Cleanup(c.closeListener)
	farm := startFarm(t, c.Port(), workers...)
	c.cfg.BroadcastPort = farm.probes.Port()
	return c, farm
}

func TestRunEqualSplitEndToEnd(t *testing.T) {
	for _, concurrent := range []bool{true, false} {
		t.Run(strconv.FormatBool(concurrent), func(t *testing.T) {
			c, farm := runWithFarm(t,
				[]fakeWorker{{benchmark: equalBench}, {benchmark: equalBench}},
				config.WithLoadBalancing(false), config.WithMaxWorkers(2), config.WithConcurrent(concurrent))

			report, err := c.Run(context.Background())
			require.Nil(t, err)
			assert.InDelta(t, 0.5, report.Total, 1e-3)
			assert.Equal(t, c.RunId(), report.RunId)
			assert.Equal(t, "equal", report.Policy)
			require.Len(t, report.Workers, 2)
			assert.Equal(t, 0.0, report.Workers[0].StartPoint)
			assert.Equal(t, 0.5, report.Workers[0].EndPoint)
			assert.Equal(t, 0.5, report.Workers[1].StartPoint)
			assert.Equal(t, 1.0, report.Workers[1].EndPoint)
			assert.Equal(t, report.Workers[0].Result+report.Workers[1].Result, report.Total)

			reqs := farm.Requests()
			require.Len(t, reqs, 2)
			for _, r := range reqs {
				assert.Equal(t, 1e-4, r.Delta)
			}
		})
	}
}

func TestRunLoadBalanced(t *testing.T) {
	c, _ := runWithFarm(t,
		[]fakeWorker{{benchmark: wire.Benchmark{ElapsedMs: 1, Delta: 1e-4}}, {benchmark: wire.Benchmark{ElapsedMs: 2, Delta: 1e-4}}},
		config.WithMaxWorkers(2), config.WithInterval(0, 3, 1e-4))

	report, err := c.Run(context.Background())
	require.Nil(t, err)
	assert.Equal(t, "load_balanced", report.Policy)
	require.Len(t, report.Workers, 2)
	widths := map[float64]float64{}
	for _, w := range report.Workers {
		widths[w.Benchmark.ElapsedMs] = w.EndPoint - w.StartPoint
	}
	assert.InDelta(t, 2*widths[2], widths[1], 1e-9)
	assert.Equal(t, 3.0, report.Workers[1].EndPoint)
	assert.InDelta(t, 4.5, report.Total, 1e-2)
}

func TestRunAbortsOnWorkerFailure(t *testing.T) {
	tests := []struct {
		name    string
		bad     fakeWorker
		errType string
	}{
		{"short benchmark", fakeWorker{benchmark: equalBench, behavior: shortBenchmark}, "BenchmarkCollectionFailed"},
		{"invalid benchmark", fakeWorker{benchmark: wire.Benchmark{ElapsedMs: 0, Delta: 1e-4}}, "BenchmarkCollectionFailed"},
		{"no response", fakeWorker{benchmark: equalBench, behavior: dropBeforeResponse}, "GatherFailed"},
	}
	for _, tt := range tests {
		for _, concurrent := range []bool{true, false} {
			t.Run(tt.name+"/"+strconv.FormatBool(concurrent), func(t *testing.T) {
				c, _ := runWithFarm(t, []fakeWorker{{benchmark: equalBench}, tt.bad},
					config.WithMaxWorkers(2), config.WithConcurrent(concurrent))
				report, err := c.Run(context.Background())
				assert.Nil(t, report)
				require.NotNil(t, err)
				assert.True(t, kerror.IsType(err, tt.errType), err.Error())
			})
		}
	}
}

func TestRunIOTimeout(t *testing.T) {
	c, _ := runWithFarm(t, []fakeWorker{{benchmark: equalBench}, {benchmark: equalBench, behavior: stayQuiet}},
		config.WithMaxWorkers(2), config.WithIOTimeout(200*time.Millisecond))
	start := time.Now()
	_, err := c.Run(context.Background())
	require.NotNil(t, err)
	assert.True(t, kerror.IsType(err, "BenchmarkCollectionFailed"))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunCancelUnblocksHungWorker(t *testing.T) {
	c, _ := runWithFarm(t, []fakeWorker{{benchmark: equalBench, behavior: stayQuiet}}, config.WithMaxWorkers(1))
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := c.Run(ctx)
	require.NotNil(t, err)
	assert.True(t, kerror.IsType(err, "BenchmarkCollectionFailed"))
}

func TestRunNoWorkersFound(t *testing.T) {
	c, _ := runWithFarm(t, nil, config.WithWaitWindow(200*time.Millisecond))
	_, err := c.Run(context.Background())
	require.NotNil(t, err)
	assert.True(t, kerror.IsType(err, "NoWorkersFound"))
}

func TestRunBroadcastFailure(t *testing.T) {
	c := NewCoordinator(config.CreateTestCoordinatorConfig(9))
	c.cfg.BroadcastAddr = "not an address"
	_, err := c.Run(context.Background())
	require.NotNil(t, err)
	assert.True(t, kerror.IsType(err, "BroadcastFailure"))
}

func TestRunListenFailure(t *testing.T) {
	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{})
	require.Nil(t, err)
	defer ln.Close()
	cfg := config.CreateTestCoordinatorConfig(9)
	cfg.ServerPort = ln.Addr().(*net.TCPAddr).Port
	_, err = NewCoordinator(cfg).Run(context.Background())
	require.NotNil(t, err)
	assert.True(t, kerror.IsType(err, "ListenFailure"))
}

func TestDispatchFailsOnClosedConnection(t *testing.T) {
	for _, concurrent := range []bool{true, false} {
		t.Run(strconv.FormatBool(concurrent), func(t *testing.T) {
			ln := listenLoopback(t)
			dialN(t, ln, 2)
			pool, err := AssemblePool(context.Background(), ln, 2, time.Second)
			require.Nil(t, err)
			defer pool.CloseAll()
			entries := pool.Entries()
			entries[0].Assigned.End = 0.5
			entries[1].Assigned.Start = 0.5
			entries[1].Assigned.End = 1
			entries[1].Conn.Close()

			c := NewCoordinator(config.CreateTestCoordinatorConfig(9, config.WithConcurrent(concurrent)))
			err = c.step(context.Background(), "coordinator.dispatch", pool, c.dispatch)
			require.NotNil(t, err)
			assert.True(t, kerror.IsType(err, "DispatchFailed"), err.Error())

			// the failure closes every other connection too
			_, err = entries[0].Conn.Write([]byte{1})
			assert.ErrorIs(t, err, net.ErrClosed)
		})
	}
}
