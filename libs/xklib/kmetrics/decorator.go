package kmetrics

import (
	"context"
	"fmt"
	"time"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

var (
	OpsLatencyMetric    = CreateKmetric(context.Background(), "op_latency_ms", "latency of instrumented operations", []string{"method", "status", "error"})
	OpsLatencyHistogram = CreateKhistogram(context.Background(), "op_lat_ms", "latency histogram of instrumented operations", []string{"method", "status"}, []int64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000})
)

// FuncTypeError is an operation being instrumented.
type FuncTypeError func(ctx context.Context) error

// invokeFuncError converts a panic into an error so the latency is still recorded.
func invokeFuncError(ctx context.Context, fn FuncTypeError) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case *kerror.Kerror:
				err = v
			case error:
				err = kerror.Wrap(v, "InternalServerError", "panic", true)
			default:
				err = kerror.Create("InternalServerError", fmt.Sprintf("panic: %v", v))
			}
		}
	}()
	return fn(ctx)
}

func tagsFor(err error) (status, errType string) {
	if err == nil {
		return "OK", ""
	}
	errType = kerror.TypeOf(err)
	if errType == "" {
		errType = "Unknown"
	}
	return "ERROR", errType
}

// InstrumentSummaryRunError records the latency of fn under method into op_latency_ms and returns fn's error.
func InstrumentSummaryRunError(ctx context.Context, method string, fn FuncTypeError) error {
	start := time.Now()
	err := invokeFuncError(ctx, fn)
	status, errType := tagsFor(err)
	OpsLatencyMetric.GetTimeSequence(ctx, method, status, errType).Add(time.Since(start).Milliseconds())
	return err
}

// InstrumentHistogramRunError is the histogram flavor; keep it for the few operations worth the extra series.
func InstrumentHistogramRunError(ctx context.Context, method string, fn FuncTypeError) error {
	start := time.Now()
	err := invokeFuncError(ctx, fn)
	status, _ := tagsFor(err)
	OpsLatencyHistogram.GetHistoSequence(ctx, method, status).Add(time.Since(start).Milliseconds())
	return err
}
