package partition

import (
	"math"

	"github.com/xinkaiwang/integralfarm/libs/wire"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

// PerformanceScale is the k in k / (elapsedMs * delta).
const PerformanceScale = 1e-6

type Policy string

const (
	PolicyEqual        Policy = "equal"
	PolicyLoadBalanced Policy = "load_balanced"
)

func PolicyOf(loadBalancing bool) Policy {
	if loadBalancing {
		return PolicyLoadBalanced
	}
	return PolicyEqual
}

type Interval struct {
	Start float64
	End   float64
}

func (iv Interval) Width() float64 {
	return iv.End - iv.Start
}

// PerformanceIndex is higher for faster workers. The benchmark must already be validated.
func PerformanceIndex(b wire.Benchmark) float64 {
	return PerformanceScale / (b.ElapsedMs * b.Delta)
}

func checkInterval(iv Interval) error {
	if math.IsNaN(iv.Start) || math.IsNaN(iv.End) || math.IsInf(iv.Start, 0) || math.IsInf(iv.End, 0) || iv.Start > iv.End {
		return kerror.Create("InvalidInterval", "interval must be finite with start <= end").
			With("start", iv.Start).With("end", iv.End).WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	return nil
}

// tile walks shares left to right. The final end is pinned to iv.End so float drift never leaves a gap.
func tile(iv Interval, shares []float64) []Interval {
	parts := make([]Interval, len(shares))
	cursor := iv.Start
	width := iv.Width()
	for i, share := range shares {
		end := cursor + share*width
		if i == len(shares)-1 {
			end = iv.End
		}
		parts[i] = Interval{Start: cursor, End: end}
		cursor = end
	}
	return parts
}

// EqualSplit cuts iv into n equal-width pieces.
func EqualSplit(iv Interval, n int) ([]Interval, error) {
	if n < 1 {
		return nil, kerror.Create("InvalidWorkerCount", "need at least one worker").With("n", n).WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	if err := checkInterval(iv); err != nil {
		return nil, err
	}
	shares := make([]float64, n)
	for i := range shares {
		shares[i] = 1 / float64(n)
	}
	return tile(iv, shares), nil
}

// LoadBalancedSplit gives each worker a width proportional to its performance index, in benchmark order.
func LoadBalancedSplit(iv Interval, benchmarks []wire.Benchmark) ([]Interval, error) {
	if len(benchmarks) < 1 {
		return nil, kerror.Create("InvalidWorkerCount", "need at least one worker").With("n", 0).WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	if err := checkInterval(iv); err != nil {
		return nil, err
	}
	indices := make([]float64, len(benchmarks))
	sum := 0.0
	for i, b := range benchmarks {
		if err := b.Validate(); err != nil {
			ke, _ := kerror.AsKerror(err)
			return nil, ke.With("index", i)
		}
		indices[i] = PerformanceIndex(b)
		sum += indices[i]
	}
	if math.IsInf(sum, 0) || math.IsNaN(sum) || sum <= 0 {
		return nil, kerror.Create("InvalidBenchmark", "performance indices do not sum to a positive finite value").
			With("sum", sum).WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	for i := range indices {
		indices[i] /= sum
	}
	return tile(iv, indices), nil
}

// Split dispatches on policy.
func Split(policy Policy, iv Interval, benchmarks []wire.Benchmark) ([]Interval, error) {
	if policy == PolicyLoadBalanced {
		return LoadBalancedSplit(iv, benchmarks)
	}
	return EqualSplit(iv, len(benchmarks))
}
