package agent

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/integralfarm/libs/wire"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/services/worker/internal/config"
)

var loopback = net.IPv4(127, 0, 0, 1)

// fakeCoordinator accepts one connection and hands it to script.
func fakeCoordinator(t *testing.T, script func(conn net.Conn)) int {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.Nil(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestAgent(t *testing.T, serverPort int, options ...config.AgentConfigOption) *Agent {
	a, err := NewAgent(context.Background(), config.CreateTestAgentConfig(serverPort, options...))
	require.Nil(t, err)
	t.Cleanup(func() { a.listener.Close() })
	return a
}

func TestNewAgentBenchmark(t *testing.T) {
	a := newTestAgent(t, 9)
	assert.True(t, a.Benchmark().ElapsedMs > 0)
	assert.Equal(t, 1e-4, a.Benchmark().Delta)
	assert.Nil(t, a.Benchmark().Validate())
}

func TestNewAgentBindFailure(t *testing.T) {
	a := newTestAgent(t, 9)
	cfg := config.CreateTestAgentConfig(9)
	cfg.ListenPort = a.ProbePort()
	_, err := NewAgent(context.Background(), cfg)
	assert.True(t, kerror.IsType(err, "ListenFailure"))
}

func TestRunCycleHappyPath(t *testing.T) {
	got := make(chan wire.Benchmark, 1)
	port := fakeCoordinator(t, func(conn net.Conn) {
		b, err := wire.ReadBenchmark(conn)
		if err != nil {
			return
		}
		got <- b
		wire.WriteRequest(conn, wire.Request{StartPoint: 0, EndPoint: 1, Delta: 1e-4})
		wire.ReadResponse(conn)
	})
	a := newTestAgent(t, port, config.WithParallelism(2))

	res := a.RunCycle(context.Background(), loopback)
	require.Nil(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, StageDone, res.Stage)
	assert.InDelta(t, 0.5, res.Response.Result, 1e-3)
	assert.True(t, res.Response.ElapsedMs >= 0)
	assert.Equal(t, a.Benchmark(), <-got)
}

func TestRunCycleFailures(t *testing.T) {
	tests := []struct {
		name      string
		script    func(conn net.Conn)
		options   []config.AgentConfigOption
		wantStage Stage
		wantType  string
	}{
		{
			name: "closed before request",
			script: func(conn net.Conn) {
				wire.ReadBenchmark(conn)
			},
			wantStage: StageAwaitingRequest,
			wantType:  "ShortRead",
		},
		{
			name: "half a request",
			script: func(conn net.Conn) {
				wire.ReadBenchmark(conn)
				conn.Write(wire.Request{StartPoint: 0, EndPoint: 1, Delta: 1}.Marshal()[:10])
			},
			wantStage: StageAwaitingRequest,
			wantType:  "ShortRead",
		},
		{
			name: "reversed interval",
			script: func(conn net.Conn) {
				wire.ReadBenchmark(conn)
				wire.WriteRequest(conn, wire.Request{StartPoint: 2, EndPoint: 1, Delta: 0.1})
			},
			wantStage: StageAwaitingRequest,
			wantType:  "InvalidRequest",
		},
		{
			name: "request timeout",
			script: func(conn net.Conn) {
				wire.ReadBenchmark(conn)
				time.Sleep(500 * time.Millisecond)
			},
			options:   []config.AgentConfigOption{config.WithRequestTimeout(50 * time.Millisecond)},
			wantStage: StageAwaitingRequest,
			wantType:  "ReadFailed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := fakeCoordinator(t, tt.script)
			a := newTestAgent(t, port, tt.options...)
			res := a.RunCycle(context.Background(), loopback)
			require.NotNil(t, res.Err)
			assert.Equal(t, tt.wantStage, res.Stage)
			assert.True(t, kerror.IsType(res.Err, tt.wantType), res.Err.Error())
		})
	}
}

func TestRunCycleDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.Nil(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	a := newTestAgent(t, port)
	res := a.RunCycle(context.Background(), loopback)
	assert.Equal(t, StageConnectingBack, res.Stage)
	assert.True(t, kerror.IsType(res.Err, "DialFailed"))
}

// a failed cycle must not stop the agent from serving the next probe
func TestRunServesProbesAfterFailure(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.Nil(t, err)
	defer ln.Close()

	results := make(chan *CycleResult, 4)
	cfg := config.CreateTestAgentConfig(ln.Addr().(*net.TCPAddr).Port)
	a, err := NewAgent(context.Background(), cfg, WithCycleObserver(func(r *CycleResult) { results <- r }))
	require.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	go func() {
		// first connection: hang up right after the benchmark
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		wire.ReadBenchmark(conn)
		conn.Close()
		// second connection: full exchange
		conn, err = ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		wire.ReadBenchmark(conn)
		wire.WriteRequest(conn, wire.Request{StartPoint: 0, EndPoint: 2, Delta: 1e-3})
		wire.ReadResponse(conn)
	}()

	require.Nil(t, wire.SendProbe(ctx, "127.0.0.1", a.ProbePort()))
	first := <-results
	assert.False(t, first.OK())
	assert.Equal(t, StageAwaitingRequest, first.Stage)

	require.Nil(t, wire.SendProbe(ctx, "127.0.0.1", a.ProbePort()))
	second := <-results
	require.True(t, second.OK())
	assert.InDelta(t, 2.0, second.Response.Result, 1e-2)

	cancel()
	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestRunStopsRunLoopWhenListenerClosed(t *testing.T) {
	a := newTestAgent(t, 9)
	a.listener.Close()

	err := a.Run(context.Background())
	assert.True(t, kerror.IsType(err, "ListenerClosed"))
	select {
	case <-a.runloop.Done():
	default:
		t.Fatal("run loop still running after Run returned")
	}
}
