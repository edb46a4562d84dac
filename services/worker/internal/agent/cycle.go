package agent

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xinkaiwang/integralfarm/libs/compute"
	"github.com/xinkaiwang/integralfarm/libs/wire"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
)

// Stage names the step a cycle was in; a failed cycle reports where it stopped.
type Stage string

const (
	StageConnectingBack   Stage = "ConnectingBack"
	StageSendingBenchmark Stage = "SendingBenchmark"
	StageAwaitingRequest  Stage = "AwaitingRequest"
	StageComputing        Stage = "Computing"
	StageSendingResponse  Stage = "SendingResponse"
	StageDone             Stage = "Done"
)

type CycleResult struct {
	CycleId     string
	Coordinator string
	Stage       Stage
	Err         error
	Request     wire.Request
	Response    wire.Response
}

func (r *CycleResult) OK() bool {
	return r.Err == nil && r.Stage == StageDone
}

// RunCycle serves one probe from coordinator: connect back, send the benchmark,
// compute the assigned request and answer it. It never panics and never leaves
// the connection open.
func (a *Agent) RunCycle(ctx context.Context, coordinator net.IP) *CycleResult {
	result := &CycleResult{
		CycleId:     uuid.NewString(),
		Coordinator: net.JoinHostPort(coordinator.String(), strconv.Itoa(a.cfg.ServerPort)),
		Stage:       StageConnectingBack,
	}
	ctx, info := klogging.CreateCtxInfo(ctx)
	info.With("cycleId", result.CycleId).With("coordinator", result.Coordinator)

	if ke := kcommon.TryCatchRun(ctx, func() {
		result.Err = a.runCycle(ctx, result)
	}); ke != nil {
		result.Err = ke
	}

	status := "OK"
	if result.Err != nil {
		status = "ERROR"
		klogging.Warning(ctx).With("stage", result.Stage).WithError(result.Err).Log("CycleAbandoned", "work cycle failed, waiting for next probe")
	} else {
		klogging.Info(ctx).
			With("start", result.Request.StartPoint).
			With("end", result.Request.EndPoint).
			With("result", result.Response.Result).
			With("elapsedMs", result.Response.ElapsedMs).
			Log("CycleComplete", "request served")
	}
	CycleMetric.GetTimeSequence(ctx, string(result.Stage), status).Add(1)
	return result
}

func (a *Agent) runCycle(ctx context.Context, result *CycleResult) error {
	dialer := net.Dialer{Timeout: a.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp4", result.Coordinator)
	if err != nil {
		return kerror.Wrap(err, "DialFailed", "cannot connect back to coordinator", false).WithErrorCode(kerror.EC_NETWORK_ERR)
	}
	defer conn.Close()
	// unblock pending reads and writes if the agent shuts down mid-cycle
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	result.Stage = StageSendingBenchmark
	if err := wire.WriteBenchmark(conn, a.benchmark); err != nil {
		return err
	}

	result.Stage = StageAwaitingRequest
	if a.cfg.RequestTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(a.cfg.RequestTimeout))
	}
	req, err := wire.ReadRequest(conn)
	if err != nil {
		return err
	}
	result.Request = req
	if err := req.Validate(); err != nil {
		return err
	}

	result.Stage = StageComputing
	sw := kcommon.StartStopwatch()
	value, err := compute.Integrate(ctx, a.workload, req.StartPoint, req.EndPoint, a.cfg.Parallelism, req.Delta)
	if err != nil {
		return err
	}
	elapsed := sw.ElapsedMs()
	ComputeMsMetric.GetTimeSequence(ctx, a.cfg.Workload).Add(int64(elapsed))
	result.Response = wire.Response{ElapsedMs: elapsed, Result: value}

	result.Stage = StageSendingResponse
	if err := wire.WriteResponse(conn, result.Response); err != nil {
		return err
	}
	result.Stage = StageDone
	return nil
}
