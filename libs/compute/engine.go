package compute

import (
	"context"
	"fmt"
	"math"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kmetrics"
	"golang.org/x/sync/errgroup"
)

// MaxParallelism caps the per-call fan-out. Above it the engine refuses to allocate task state.
const MaxParallelism = 4096

var (
	IntegrateMsMetric = kmetrics.CreateKmetric(context.Background(), "compute_integrate_ms", "engine invocations and their wall time", []string{"status"})
)

// Workload is the integrand. It must be pure: it is called concurrently.
type Workload func(x float64) float64

// Reduce is the trapezoid kernel over [start, end]. Only whole steps are taken: the
// last partial step before end is dropped, so results carry a small downward bias
// when (end-start)/delta is not an integer.
func Reduce(f Workload, start, end, delta float64) float64 {
	res := 0.0
	for x := start; x+delta <= end; x += delta {
		res += delta * (f(x) + f(x+delta))
	}
	return res / 2
}

// StepAdvances reports whether x += delta moves x everywhere in [a, b]. Float spacing
// grows with |x|, so checking both ends covers the whole interval.
func StepAdvances(a, b, delta float64) bool {
	return a+delta != a && b-delta != b
}

func validate(a, b float64, parallelism int, delta float64) error {
	if parallelism < 1 {
		return kerror.Create("InvalidParallelism", "parallelism must be at least 1").
			With("parallelism", parallelism).
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	if parallelism > MaxParallelism {
		return kerror.Create("ResourceExhausted", "parallelism exceeds engine limit").
			With("parallelism", parallelism).
			With("max", MaxParallelism).
			WithErrorCode(kerror.EC_RESOURCE_LIMIT)
	}
	if math.IsNaN(delta) || delta <= 0 {
		return kerror.Create("InvalidDelta", "delta must be positive").
			With("delta", delta).
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) || a > b {
		return kerror.Create("InvalidInterval", "interval needs finite bounds with start <= end").
			With("start", a).
			With("end", b).
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	if !StepAdvances(a, b, delta) {
		return kerror.Create("InvalidDelta", "delta is below float resolution at the interval bounds").
			With("delta", delta).
			With("start", a).
			With("end", b).
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	return nil
}

// Integrate splits [a, b] into parallelism equal sub-ranges, reduces each on its own
// goroutine and sums the partials in sub-range order. Same inputs, same bits.
//
// ctx is only consulted before the fan-out; a started reduction always runs to completion.
func Integrate(ctx context.Context, f Workload, a, b float64, parallelism int, delta float64) (result float64, err error) {
	sw := kcommon.StartStopwatch()
	defer func() {
		status := "OK"
		if err != nil {
			status = kerror.TypeOf(err)
		}
		IntegrateMsMetric.GetTimeSequence(ctx, status).Add(int64(sw.ElapsedMs()))
	}()

	if err := validate(a, b, parallelism, delta); err != nil {
		return 0, err
	}
	if f == nil {
		f = Identity
	}

	partials := make([]float64, parallelism)
	width := (b - a) / float64(parallelism)
	var g errgroup.Group
	for i := 0; i < parallelism; i++ {
		if ctx.Err() != nil {
			g.Wait()
			return 0, kerror.Wrap(ctx.Err(), "SpawnFailure", "context ended before all reductions started", false).
				With("started", i).
				With("parallelism", parallelism)
		}
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = kerror.Create("JoinFailure", fmt.Sprintf("reduction panicked: %v", r)).With("task", i)
				}
			}()
			lo := a + float64(i)*width
			hi := a + float64(i+1)*width
			partials[i] = Reduce(f, lo, hi, delta)
			if math.IsNaN(partials[i]) {
				return kerror.Create("JoinFailure", "reduction produced NaN").With("task", i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	for _, p := range partials {
		result += p
	}
	return result, nil
}

// ReferenceStart and ReferenceEnd bound the benchmark integration.
const (
	ReferenceStart = 0.0
	ReferenceEnd   = 1.0
)

// minBenchmarkMs keeps the reported elapsed time strictly positive on fast machines.
const minBenchmarkMs = 1e-3

// RunBenchmark integrates f over the reference interval and returns the wall time in ms.
func RunBenchmark(ctx context.Context, f Workload, parallelism int, delta float64) (float64, error) {
	sw := kcommon.StartStopwatch()
	if _, err := Integrate(ctx, f, ReferenceStart, ReferenceEnd, parallelism, delta); err != nil {
		return 0, kerror.Wrap(err, "BenchmarkFailed", "reference integration failed", false)
	}
	elapsed := sw.ElapsedMs()
	if elapsed < minBenchmarkMs {
		elapsed = minBenchmarkMs
	}
	return elapsed, nil
}
