package partition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/integralfarm/libs/wire"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

func assertTiles(t *testing.T, iv Interval, parts []Interval) {
	t.Helper()
	require.NotEmpty(t, parts)
	assert.Equal(t, iv.Start, parts[0].Start)
	assert.Equal(t, iv.End, parts[len(parts)-1].End)
	for i := 1; i < len(parts); i++ {
		assert.Equal(t, parts[i-1].End, parts[i].Start, "gap or overlap at %d", i)
		assert.LessOrEqual(t, parts[i].Start, parts[i].End)
	}
}

func TestEqualSplitTwoWorkers(t *testing.T) {
	iv := Interval{Start: 0, End: 1}
	parts, err := EqualSplit(iv, 2)
	require.Nil(t, err)
	assert.Equal(t, []Interval{{0, 0.5}, {0.5, 1}}, parts)
}

func TestEqualSplitClampsLastEnd(t *testing.T) {
	iv := Interval{Start: 0.1, End: 0.7}
	parts, err := EqualSplit(iv, 3)
	require.Nil(t, err)
	assertTiles(t, iv, parts)
	for _, p := range parts {
		assert.InDelta(t, 0.2, p.Width(), 1e-12)
	}
}

func TestLoadBalancedTwiceAsFast(t *testing.T) {
	iv := Interval{Start: 0, End: 3}
	benchmarks := []wire.Benchmark{
		{ElapsedMs: 1, Delta: 1e-4},
		{ElapsedMs: 2, Delta: 1e-4},
	}
	parts, err := LoadBalancedSplit(iv, benchmarks)
	require.Nil(t, err)
	assertTiles(t, iv, parts)
	assert.InDelta(t, 2*parts[1].Width(), parts[0].Width(), 1e-12)
}

func TestLoadBalancedEqualBenchmarksMatchEqualSplit(t *testing.T) {
	iv := Interval{Start: 0, End: 1}
	b := wire.Benchmark{ElapsedMs: 1, Delta: 1e-4}
	parts, err := LoadBalancedSplit(iv, []wire.Benchmark{b, b})
	require.Nil(t, err)
	assert.Equal(t, []Interval{{0, 0.5}, {0.5, 1}}, parts)
}

func TestLoadBalancedManyWorkersTile(t *testing.T) {
	iv := Interval{Start: -2.5, End: 7.25}
	var benchmarks []wire.Benchmark
	for i := 1; i <= 13; i++ {
		benchmarks = append(benchmarks, wire.Benchmark{ElapsedMs: float64(i) * 0.37, Delta: 1e-5 * float64(14-i)})
	}
	parts, err := LoadBalancedSplit(iv, benchmarks)
	require.Nil(t, err)
	require.Len(t, parts, 13)
	assertTiles(t, iv, parts)
}

func TestSingleWorkerGetsEverything(t *testing.T) {
	iv := Interval{Start: 1, End: 2}
	parts, err := Split(PolicyLoadBalanced, iv, []wire.Benchmark{{ElapsedMs: 5, Delta: 1e-6}})
	require.Nil(t, err)
	assert.Equal(t, []Interval{iv}, parts)
}

func TestEmptyInterval(t *testing.T) {
	iv := Interval{Start: 4, End: 4}
	parts, err := EqualSplit(iv, 3)
	require.Nil(t, err)
	for _, p := range parts {
		assert.Equal(t, Interval{4, 4}, p)
	}
}

func TestPerformanceIndex(t *testing.T) {
	assert.InDelta(t, 0.01, PerformanceIndex(wire.Benchmark{ElapsedMs: 1, Delta: 1e-4}), 1e-15)
}

func TestSplitErrors(t *testing.T) {
	tests := []struct {
		name    string
		run     func() error
		errType string
	}{
		{"zero workers", func() error { _, err := EqualSplit(Interval{0, 1}, 0); return err }, "InvalidWorkerCount"},
		{"no benchmarks", func() error { _, err := LoadBalancedSplit(Interval{0, 1}, nil); return err }, "InvalidWorkerCount"},
		{"reversed", func() error { _, err := EqualSplit(Interval{1, 0}, 1); return err }, "InvalidInterval"},
		{"nan", func() error { _, err := EqualSplit(Interval{math.NaN(), 1}, 1); return err }, "InvalidInterval"},
		{"zero elapsed", func() error {
			_, err := LoadBalancedSplit(Interval{0, 1}, []wire.Benchmark{{ElapsedMs: 1, Delta: 1}, {ElapsedMs: 0, Delta: 1}})
			return err
		}, "InvalidBenchmark"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.NotNil(t, err)
			assert.True(t, kerror.IsType(err, tt.errType), err.Error())
		})
	}
}

func TestPolicyOf(t *testing.T) {
	assert.Equal(t, PolicyLoadBalanced, PolicyOf(true))
	assert.Equal(t, PolicyEqual, PolicyOf(false))
}
